// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exit

import (
	"math"

	"github.com/spf13/pflag"

	"github.com/luxfi/lean/cmd/lean/password"
)

const (
	URIKey          = "uri"
	RegistryKey     = "registry"
	KeystoreDirKey  = "keystore"
	PasswordFileKey = "password-file"
	IndexKey        = "index"
	EpochKey        = "epoch"
	OutKey          = "out"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(URIKey, "http://127.0.0.1:9650", "API URI of the node to submit the exit to")
	flags.String(RegistryKey, "", "Path to the validator registry file (required)")
	flags.String(KeystoreDirKey, ".", "Directory holding the encrypted key files")
	flags.String(PasswordFileKey, "", "File holding the keystore password; prompts when empty")
	flags.Uint64(IndexKey, math.MaxUint64, "Index of the exiting validator (required)")
	flags.Uint64(EpochKey, 0, "Epoch the exit becomes valid in")
	flags.String(OutKey, "", "Write the signed exit to this file instead of submitting it")
}

type Config struct {
	URI         string
	Registry    string
	KeystoreDir string
	Password    string
	Index       uint64
	Epoch       uint64
	Out         string
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	uri, err := flags.GetString(URIKey)
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

	index, err := flags.GetUint64(IndexKey)
	if err != nil {
		return nil, err
	}

	epoch, err := flags.GetUint64(EpochKey)
	if err != nil {
		return nil, err
	}

	out, err := flags.GetString(OutKey)
	if err != nil {
		return nil, err
	}

	pw, err := password.Read(passwordFile, false)
	if err != nil {
		return nil, err
	}

	return &Config{
		URI:         uri,
		Registry:    registry,
		KeystoreDir: keystoreDir,
		Password:    pw,
		Index:       index,
		Epoch:       epoch,
		Out:         out,
	}, nil
}
