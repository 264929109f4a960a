// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"time"

	"github.com/luxfi/lean/network"
)

// HTTPConfig carries the HTTP server knobs.
type HTTPConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9650".
	Addr string `json:"addr"`

	AllowedOrigins []string `json:"allowedOrigins"`

	ReadTimeout       time.Duration `json:"readTimeout"`
	ReadHeaderTimeout time.Duration `json:"readHeaderTimeout"`
	WriteTimeout      time.Duration `json:"writeTimeout"`
	IdleTimeout       time.Duration `json:"idleTimeout"`

	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
}

// Config collects the node-local settings. Unlike config.Config, nothing
// here needs to agree across the network.
type Config struct {
	HTTP    HTTPConfig     `json:"http"`
	Network network.Config `json:"network"`

	// AttestationPoolSize bounds the aggregation pool.
	AttestationPoolSize int `json:"attestationPoolSize"`

	// ExitPoolSize bounds the voluntary exit pool.
	ExitPoolSize int `json:"exitPoolSize"`
}

var DefaultConfig = Config{
	HTTP: HTTPConfig{
		Addr:              "127.0.0.1:9650",
		AllowedOrigins:    []string{"*"},
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	},
	Network:             network.DefaultConfig,
	AttestationPoolSize: 4096,
	ExitPoolSize:        64,
}
