// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/charmbracelet/huh"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultKeyEnv is the variable EnvKey reads when Var is empty.
const DefaultKeyEnv = "AUTOMATA_PRIVATE_KEY"

var (
	// ErrConsentDeclined is returned when the user refuses to authorize.
	ErrConsentDeclined = errors.New("user declined to authorize the account")

	// ErrInvalidKey is returned for keys that are not 32 hex-encoded bytes.
	ErrInvalidKey = errors.New("private key must be 32 hex-encoded bytes")
)

// =============================================================================
// Account
// =============================================================================

// Account authorizes a named account with no signing key. The development
// store accepts it.
type Account struct {
	Name string
}

func (a Account) Authorize(ctx context.Context) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return nil, errors.New("account name is empty")
	}
	return &Credentials{Account: name}, nil
}

// =============================================================================
// EnvKey
// =============================================================================

// EnvKey reads a hex private key from the environment.
type EnvKey struct {
	// Var names the variable. Default: DefaultKeyEnv.
	Var string
}

func (e EnvKey) Authorize(ctx context.Context) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := e.Var
	if name == "" {
		name = DefaultKeyEnv
	}
	raw, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%s is not set", name)
	}
	return sealKey(raw)
}

// =============================================================================
// PromptKey
// =============================================================================

// PromptKey asks for a private key on the terminal and then asks the user to
// confirm that automata may sign with it.
type PromptKey struct {
	// Accessible renders the form without a TUI, for screen readers and
	// non-interactive terminals.
	Accessible bool

	prompt func(ctx context.Context, accessible bool) (key string, consent bool, err error)
}

func (p PromptKey) Authorize(ctx context.Context) (*Credentials, error) {
	prompt := p.prompt
	if prompt == nil {
		prompt = runKeyForm
	}
	key, consent, err := prompt(ctx, p.Accessible)
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, ErrConsentDeclined
		}
		return nil, fmt.Errorf("key prompt: %w", err)
	}
	if !consent {
		return nil, ErrConsentDeclined
	}
	return sealKey(key)
}

func runKeyForm(ctx context.Context, accessible bool) (string, bool, error) {
	var (
		key     string
		consent bool
	)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Private key").
				Description("Hex-encoded key of the account that signs grid transactions.").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					_, err := decodeKey(s)
					return err
				}).
				Value(&key),
			huh.NewConfirm().
				Title("Allow automata to sign transactions with this account?").
				Affirmative("Allow").
				Negative("Deny").
				Value(&consent),
		),
	).WithAccessible(accessible)

	if err := form.RunWithContext(ctx); err != nil {
		return "", false, err
	}
	return key, consent, nil
}

// =============================================================================
// Key handling
// =============================================================================

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return nil, ErrInvalidKey
	}
	return b, nil
}

// sealKey derives the account address and moves the key into an enclave.
// The decoded plaintext is wiped.
func sealKey(s string) (*Credentials, error) {
	b, err := decodeKey(s)
	if err != nil {
		return nil, err
	}
	pk, err := crypto.ToECDSA(b)
	if err != nil {
		memguard.WipeBytes(b)
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	account := crypto.PubkeyToAddress(pk.PublicKey).Hex()
	return &Credentials{Account: account, key: memguard.NewEnclave(b)}, nil
}
