// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"

	"github.com/AleutianAI/automata/pkg/gridstore/ethstore"
	"github.com/AleutianAI/automata/pkg/telemetry"
)

// Backend types.
const (
	BackendDevchain = "devchain"
	BackendEthereum = "ethereum"
)

// Authorization modes.
const (
	AuthAccount = "account"
	AuthEnv     = "env"
	AuthPrompt  = "prompt"
)

type AutomataConfig struct {
	// Backend: which store holds the authoritative grid
	Backend BackendConfig `yaml:"backend" envPrefix:"BACKEND_"`

	// Auth: how the session is authorized
	Auth AuthConfig `yaml:"auth" envPrefix:"AUTH_"`

	// Poll: background refresh of the authoritative grid
	Poll PollConfig `yaml:"poll" envPrefix:"POLL_"`

	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`

	// Metrics: optional Prometheus endpoint while the board runs
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`

	Telemetry telemetry.Config `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

type BackendConfig struct {
	// Type is "devchain" or "ethereum".
	Type string `yaml:"type" env:"TYPE" validate:"oneof=devchain ethereum"`

	DevchainURL string `yaml:"devchain_url" env:"DEVCHAIN_URL" validate:"required_if=Type devchain"`

	// RPCURL must be ws:// or ipc for the event stream to work.
	RPCURL          string        `yaml:"rpc_url" env:"RPC_URL" validate:"required_if=Type ethereum"`
	ContractAddress string        `yaml:"contract_address" env:"CONTRACT_ADDRESS" validate:"omitempty,eth_addr"`
	ChainID         int64         `yaml:"chain_id" env:"CHAIN_ID" validate:"gte=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" validate:"gte=0"`
	MineTimeout     time.Duration `yaml:"mine_timeout" env:"MINE_TIMEOUT" validate:"gte=0"`
}

type AuthConfig struct {
	// Mode is "account" (development store), "env" or "prompt".
	Mode    string `yaml:"mode" env:"MODE" validate:"oneof=account env prompt"`
	Account string `yaml:"account" env:"ACCOUNT" validate:"required_if=Mode account"`

	// KeyEnv names the variable holding the private key in "env" mode.
	KeyEnv string `yaml:"key_env" env:"KEY_ENV"`

	// Accessible renders the key prompt without a TUI.
	Accessible bool `yaml:"accessible" env:"ACCESSIBLE"`
}

type PollConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL" validate:"gt=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn warning error"`

	// Dir receives JSON log files. The board always logs here because the
	// terminal is in use.
	Dir  string `yaml:"dir" env:"DIR"`
	JSON bool   `yaml:"json" env:"JSON"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint; empty disables it.
	Listen string `yaml:"listen" env:"LISTEN" validate:"omitempty,hostname_port"`
}

func DefaultConfig() AutomataConfig {
	tel := telemetry.DefaultConfig("automata")
	return AutomataConfig{
		Backend: BackendConfig{
			Type:            BackendDevchain,
			DevchainURL:     "http://localhost:8545",
			RPCURL:          "ws://localhost:8546",
			ContractAddress: ethstore.DefaultAddress,
			RequestTimeout:  10 * time.Second,
			MineTimeout:     2 * time.Minute,
		},
		Auth: AuthConfig{
			Mode:    AuthAccount,
			Account: "player",
		},
		Poll: PollConfig{
			Interval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.automata/logs",
		},
		Telemetry: tel,
	}
}
