// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gossip classifies inbound consensus messages before anything
// touches the fork-choice store. A Reject is final for that message; an
// Ignore either drops a stale duplicate or defers a message whose
// dependencies have not arrived yet.
package gossip

// Decision is the outcome of validating a gossip message.
type Decision uint8

const (
	// Accept: apply the message and keep propagating it.
	Accept Decision = iota
	// Reject: the message is invalid and its sender misbehaved.
	Reject
	// Ignore: drop without penalty; duplicates, stale or still-missing
	// dependencies.
	Ignore
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	case Ignore:
		return "ignore"
	default:
		return "unknown"
	}
}
