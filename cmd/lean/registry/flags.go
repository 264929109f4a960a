// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"github.com/spf13/pflag"
)

const (
	KeysDirKey         = "keys"
	OutKey             = "out"
	BalanceKey         = "balance"
	ActivationEpochKey = "activation-epoch"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(KeysDirKey, ".", "Directory of key files to register")
	flags.String(OutKey, "registry.yaml", "Path of the registry file to write")
	flags.Uint64(BalanceKey, 1, "Effective balance granted to every validator")
	flags.Uint64(ActivationEpochKey, 0, "Epoch at which the validators activate")
}

type Config struct {
	KeysDir         string
	Out             string
	Balance         uint64
	ActivationEpoch uint64
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	keysDir, err := flags.GetString(KeysDirKey)
	if err != nil {
		return nil, err
	}

	out, err := flags.GetString(OutKey)
	if err != nil {
		return nil, err
	}

	balance, err := flags.GetUint64(BalanceKey)
	if err != nil {
		return nil, err
	}

	activationEpoch, err := flags.GetUint64(ActivationEpochKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		KeysDir:         keysDir,
		Out:             out,
		Balance:         balance,
		ActivationEpoch: activationEpoch,
	}, nil
}
