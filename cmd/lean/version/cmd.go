// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/lean/api"
)

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the node version",
		RunE:  versionFunc,
	}
}

func versionFunc(c *cobra.Command, _ []string) error {
	_, err := fmt.Fprintln(c.OutOrStdout(), api.Version)
	return err
}
