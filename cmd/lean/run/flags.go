// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"os"

	"github.com/luxfi/ids"
	"github.com/spf13/pflag"

	"github.com/luxfi/lean/config"
	"github.com/luxfi/lean/node"
)

const (
	ConfigKey       = "config"
	GenesisTimeKey  = "genesis-time"
	DataDirKey      = "data-dir"
	RegistryKey     = "registry"
	KeystoreDirKey  = "keystore"
	PasswordFileKey = "password-file"
	HTTPAddrKey     = "http-addr"
	NodeIDKey       = "node-id"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(ConfigKey, "", "Path to the chain config JSON; defaults apply when empty")
	flags.Uint64(GenesisTimeKey, 0, "Overrides the chain config genesis time (unix seconds)")
	flags.String(DataDirKey, "", "Directory for the database; in-memory when empty")
	flags.String(RegistryKey, "", "Path to the validator registry file (required)")
	flags.String(KeystoreDirKey, "", "Directory of encrypted key files; omit to run without duties")
	flags.String(PasswordFileKey, "", "File holding the keystore password; prompts when empty")
	flags.String(HTTPAddrKey, node.DefaultConfig.HTTP.Addr, "HTTP listen address")
	flags.String(NodeIDKey, "", "This node's ID; defaults to the registry entry of the first local key")
}

type Config struct {
	Chain        config.Config
	DataDir      string
	Registry     string
	KeystoreDir  string
	PasswordFile string
	HTTPAddr     string
	NodeID       ids.NodeID
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	configPath, err := flags.GetString(ConfigKey)
	if err != nil {
		return nil, err
	}

	var configBytes []byte
	if configPath != "" {
		configBytes, err = os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
	}
	chain, err := config.ParseConfig(configBytes)
	if err != nil {
		return nil, err
	}

	genesisTime, err := flags.GetUint64(GenesisTimeKey)
	if err != nil {
		return nil, err
	}
	if genesisTime != 0 {
		chain.GenesisTime = genesisTime
	}

	dataDir, err := flags.GetString(DataDirKey)
	if err != nil {
		return nil, err
	}

	registry, err := flags.GetString(RegistryKey)
	if err != nil {
		return nil, err
	}

	keystoreDir, err := flags.GetString(KeystoreDirKey)
	if err != nil {
		return nil, err
	}

	passwordFile, err := flags.GetString(PasswordFileKey)
	if err != nil {
		return nil, err
	}

	httpAddr, err := flags.GetString(HTTPAddrKey)
	if err != nil {
		return nil, err
	}

	nodeIDStr, err := flags.GetString(NodeIDKey)
	if err != nil {
		return nil, err
	}
	var nodeID ids.NodeID
	if nodeIDStr != "" {
		nodeID, err = ids.NodeIDFromString(nodeIDStr)
		if err != nil {
			return nil, err
		}
	}

	return &Config{
		Chain:        chain,
		DataDir:      dataDir,
		Registry:     registry,
		KeystoreDir:  keystoreDir,
		PasswordFile: passwordFile,
		HTTPAddr:     httpAddr,
		NodeID:       nodeID,
	}, nil
}
