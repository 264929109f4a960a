// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"errors"
	"net/http"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/warp"
	"github.com/spf13/cobra"

	"github.com/luxfi/lean/cmd/lean/password"
	"github.com/luxfi/lean/core"
	"github.com/luxfi/lean/keystore"
	"github.com/luxfi/lean/node"
	"github.com/luxfi/lean/validators"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "node",
		Short: "Runs a node",
		RunE:  runFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func runFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	config, err := ParseFlags(flags, args)
	if err != nil {
		return err
	}

	logger := log.NewLogger("lean")

	registry, err := validators.LoadFile(config.Registry)
	if err != nil {
		return err
	}
	genesis, err := core.NewGenesisState(core.ParamsFromConfig(config.Chain), registry)
	if err != nil {
		return err
	}

	var db database.Database
	if config.DataDir == "" {
		logger.Warn("no data directory set, state will not survive a restart")
		db = memdb.New()
	} else {
		db, err = badgerdb.New(config.DataDir, nil, "lean", nil)
		if err != nil {
			return err
		}
	}

	var keys *keystore.Keystore
	if config.KeystoreDir != "" {
		pw, err := password.Read(config.PasswordFile, false)
		if err != nil {
			return err
		}
		keys, err = keystore.Open(config.KeystoreDir, pw, registry)
		if err != nil {
			return err
		}
	}

	nodeID := config.NodeID
	if nodeID == ids.EmptyNodeID && keys != nil {
		nodeID = localNodeID(registry, keys)
	}

	nodeCfg := node.DefaultConfig
	nodeCfg.HTTP.Addr = config.HTTPAddr

	n, err := node.New(
		logger,
		config.Chain,
		nodeCfg,
		db,
		genesis,
		keys,
		nodeID,
		ids.Empty,
		warp.FakeSender{},
	)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		return err
	}

	go func() {
		<-c.Context().Done()
		if err := n.Shutdown(); err != nil {
			logger.Error("shutdown failed", log.Err(err))
		}
	}()

	err = n.Dispatch()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return errors.Join(err, n.Shutdown())
}

// localNodeID picks the registry node ID of the lowest-index validator the
// keystore controls.
func localNodeID(registry *validators.Registry, keys *keystore.Keystore) ids.NodeID {
	indices := keys.Indices()
	for _, vdr := range registry.Validators() {
		if _, ok := indices[vdr.Index]; ok && vdr.NodeID != ids.EmptyNodeID {
			return vdr.NodeID
		}
	}
	return ids.EmptyNodeID
}
