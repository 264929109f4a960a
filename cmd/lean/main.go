// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// lean is the node daemon and validator tooling in one binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luxfi/lean/cmd/lean/exit"
	"github.com/luxfi/lean/cmd/lean/keys"
	"github.com/luxfi/lean/cmd/lean/registry"
	"github.com/luxfi/lean/cmd/lean/run"
	"github.com/luxfi/lean/cmd/lean/version"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := &cobra.Command{
		Use:   "lean",
		Short: "Lean consensus node",
	}
	cmd.AddCommand(
		run.Command(),
		keys.Command(),
		registry.Command(),
		exit.Command(),
		version.Command(),
	)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
