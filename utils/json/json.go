// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package json carries the quoted numeric types and RPC codec the API
// surface marshals through.
package json

import "strconv"

const null = "null"

// Uint64 marshals as a quoted decimal string. Slots, epochs and balances
// cross the RPC boundary this way so JavaScript clients never lose
// precision to float coercion.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, 22)
	b = append(b, '"')
	b = strconv.AppendUint(b, uint64(u), 10)
	return append(b, '"'), nil
}

func (u *Uint64) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == null {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseUint(s, 10, 64)
	*u = Uint64(v)
	return err
}
