// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/ids"
	"github.com/spf13/cobra"

	"github.com/luxfi/lean/keystore"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

var errNoKeyFiles = errors.New("no key files found")

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "registry",
		Short: "Validator registry management",
	}
	c.AddCommand(newCommand())
	return c
}

func newCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "new",
		Short: "Assembles a registry file from a directory of keys",
		RunE:  newFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func newFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	config, err := ParseFlags(flags, args)
	if err != nil {
		return err
	}

	// Key files only carry the public key in the clear, which is all a
	// registry needs. os.ReadDir sorts by name, so indices are stable
	// across runs.
	entries, err := os.ReadDir(config.KeysDir)
	if err != nil {
		return err
	}

	var records []validators.Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(config.KeysDir, entry.Name())
		pubKey, err := keystore.PublicKeyFromFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		records = append(records, validators.NewRecord(
			uint64(len(records)),
			ids.EmptyNodeID,
			pubKey,
			config.Balance,
			types.Epoch(config.ActivationEpoch),
		))
	}
	if len(records) == 0 {
		return fmt.Errorf("%w in %s", errNoKeyFiles, config.KeysDir)
	}

	if err := validators.WriteFile(config.Out, records); err != nil {
		return err
	}

	// Round-trip the file so a malformed registry never leaves this command
	// silently.
	if _, err := validators.LoadFile(config.Out); err != nil {
		return err
	}

	fmt.Fprintf(c.OutOrStdout(), "wrote %d validators to %s\n", len(records), config.Out)
	return nil
}
