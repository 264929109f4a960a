// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wrappers holds the byte packer gossip frames go through and a
// first-error collector for batched registrations.
package wrappers

// Errs keeps the first non-nil error of a sequence of operations, so a
// block of collector registrations reads without per-call checks.
type Errs struct {
	Err error
}

// Add records the first non-nil error.
func (errs *Errs) Add(errors ...error) {
	if errs.Err == nil {
		for _, err := range errors {
			if err != nil {
				errs.Err = err
				break
			}
		}
	}
}
