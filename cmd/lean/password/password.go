// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package password reads keystore passwords from a file or an interactive
// terminal prompt.
package password

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

var ErrMismatch = errors.New("passwords do not match")

// Read returns the password in [path], or prompts on the terminal when
// [path] is empty. With [confirm] the prompt is repeated and both entries
// must match.
func Read(path string, confirm bool) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if !confirm {
		return string(password), nil
	}

	fmt.Print("Confirm password: ")
	again, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if !bytes.Equal(password, again) {
		return "", ErrMismatch
	}
	return string(password), nil
}
