// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keys

import (
	"github.com/spf13/pflag"

	"github.com/luxfi/lean/cmd/lean/password"
)

const (
	DirKey          = "dir"
	CountKey        = "count"
	PasswordFileKey = "password-file"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(DirKey, ".", "Directory to write the key files into")
	flags.Int(CountKey, 1, "Number of keys to generate")
	flags.String(PasswordFileKey, "", "File holding the encryption password; prompts when empty")
}

type Config struct {
	Dir      string
	Count    int
	Password string
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	dir, err := flags.GetString(DirKey)
	if err != nil {
		return nil, err
	}

	count, err := flags.GetInt(CountKey)
	if err != nil {
		return nil, err
	}

	passwordFile, err := flags.GetString(PasswordFileKey)
	if err != nil {
		return nil, err
	}

	pw, err := password.Read(passwordFile, passwordFile == "")
	if err != nil {
		return nil, err
	}

	return &Config{
		Dir:      dir,
		Count:    count,
		Password: pw,
	}, nil
}
