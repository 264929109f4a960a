// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import "time"

// Config tunes the gossip layer.
type Config struct {
	MaxValidatorSetStaleness                    time.Duration `json:"max-validator-set-staleness"`
	TargetGossipSize                            int           `json:"target-gossip-size"`
	PushGossipPercentStake                      float64       `json:"push-gossip-percent-stake"`
	PushGossipNumValidators                     int           `json:"push-gossip-num-validators"`
	PushGossipNumPeers                          int           `json:"push-gossip-num-peers"`
	PushRegossipNumValidators                   int           `json:"push-regossip-num-validators"`
	PushRegossipNumPeers                        int           `json:"push-regossip-num-peers"`
	PushGossipDiscardedCacheSize                int           `json:"push-gossip-discarded-cache-size"`
	PushGossipMaxRegossipFrequency              time.Duration `json:"push-gossip-max-regossip-frequency"`
	PushGossipFrequency                         time.Duration `json:"push-gossip-frequency"`
	PullGossipPollSize                          int           `json:"pull-gossip-poll-size"`
	PullGossipFrequency                         time.Duration `json:"pull-gossip-frequency"`
	PullGossipThrottlingPeriod                  time.Duration `json:"pull-gossip-throttling-period"`
	PullGossipThrottlingLimit                   int           `json:"pull-gossip-throttling-limit"`
	ExpectedBloomFilterElements                 int           `json:"expected-bloom-filter-elements"`
	ExpectedBloomFilterFalsePositiveProbability float64       `json:"expected-bloom-filter-false-positive-probability"`
	MaxBloomFilterFalsePositiveProbability      float64       `json:"max-bloom-filter-false-positive-probability"`
}

var DefaultConfig = Config{
	MaxValidatorSetStaleness:                    time.Minute,
	TargetGossipSize:                            20 * 1024,
	PushGossipPercentStake:                      0.9,
	PushGossipNumValidators:                     100,
	PushGossipNumPeers:                          0,
	PushRegossipNumValidators:                   10,
	PushRegossipNumPeers:                        0,
	PushGossipDiscardedCacheSize:                16384,
	PushGossipMaxRegossipFrequency:              10 * time.Second,
	PushGossipFrequency:                         500 * time.Millisecond,
	PullGossipPollSize:                          1,
	PullGossipFrequency:                         1500 * time.Millisecond,
	PullGossipThrottlingPeriod:                  10 * time.Second,
	PullGossipThrottlingLimit:                   2,
	ExpectedBloomFilterElements:                 8 * 1024,
	ExpectedBloomFilterFalsePositiveProbability: 0.01,
	MaxBloomFilterFalsePositiveProbability:      0.05,
}
