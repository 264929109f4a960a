// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keys

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/luxfi/lean/keystore"
)

var errBadCount = errors.New("count must be positive")

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "keys",
		Short: "Validator key management",
	}
	c.AddCommand(newCommand())
	return c
}

func newCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "new",
		Short: "Generates encrypted validator key files",
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
	if config.Count <= 0 {
		return errBadCount
	}

	for i := 0; i < config.Count; i++ {
		signer, err := keystore.Generate()
		if err != nil {
			return err
		}

		pubKey := signer.PublicKey()
		path := filepath.Join(config.Dir, fmt.Sprintf("%x.json", pubKey[:8]))
		if err := keystore.WriteFile(path, signer, config.Password); err != nil {
			return err
		}

		fmt.Fprintf(c.OutOrStdout(), "%x %s\n", pubKey, path)
	}
	return nil
}
