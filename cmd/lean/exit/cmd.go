// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exit

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/luxfi/lean/api"
	"github.com/luxfi/lean/keystore"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

var (
	errNoIndex = errors.New("validator index is required")
	errNoKey   = errors.New("keystore holds no key for validator")
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "exit",
		Short: "Signs and submits a voluntary exit",
		RunE:  exitFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func exitFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	config, err := ParseFlags(flags, args)
	if err != nil {
		return err
	}
	if config.Index == math.MaxUint64 {
		return errNoIndex
	}

	registry, err := validators.LoadFile(config.Registry)
	if err != nil {
		return err
	}

	ks, err := keystore.Open(config.KeystoreDir, config.Password, registry)
	if err != nil {
		return err
	}
	signer, ok := ks.Signer(config.Index)
	if !ok {
		return fmt.Errorf("%w %d", errNoKey, config.Index)
	}

	exit := &types.VoluntaryExit{
		ValidatorIndex: config.Index,
		Epoch:          types.Epoch(config.Epoch),
	}
	msg, err := exit.SigningRoot()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(msg[:])
	if err != nil {
		return err
	}
	signed := &types.SignedVoluntaryExit{
		VoluntaryExit: *exit,
		Signature:     sig,
	}

	if config.Out != "" {
		raw, err := types.Codec.Marshal(types.CodecVersion, signed)
		if err != nil {
			return err
		}
		if err := renameio.WriteFile(config.Out, []byte(hex.EncodeToString(raw)), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "wrote signed exit for validator %d to %s\n", config.Index, config.Out)
		return nil
	}

	client, err := api.NewClient(config.URI)
	if err != nil {
		return err
	}
	id, err := client.SubmitExit(c.Context(), signed)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "submitted exit %s for validator %d\n", id, config.Index)
	return nil
}
