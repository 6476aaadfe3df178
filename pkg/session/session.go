// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session is the authorization phase that precedes every store call.
//
// Open runs an Authorizer, dials the store with the resulting Credentials and
// returns an immutable Ready handle. Nothing in automata constructs an engine
// or contacts the store without a Ready.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/AleutianAI/automata/pkg/gridstore"
)

// ErrAuthorizationDenied matches every failure of Open.
var ErrAuthorizationDenied = errors.New("authorization denied")

// DeniedError reports which stage of Open failed.
//
// errors.Is(err, ErrAuthorizationDenied) is always true. Unwrap exposes the
// cause, so a dial failure still matches gridstore.ErrRemoteUnavailable.
type DeniedError struct {
	Stage string
	Err   error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrAuthorizationDenied, e.Stage, e.Err)
}

func (e *DeniedError) Unwrap() error { return e.Err }

func (e *DeniedError) Is(target error) bool { return target == ErrAuthorizationDenied }

// Credentials identify the account that signs mutations.
//
// A signing key, when present, lives in a memguard enclave and is only
// decrypted for the duration of OpenKey.
type Credentials struct {
	Account string
	key     *memguard.Enclave
}

// HasKey reports whether the credentials carry a signing key.
func (c *Credentials) HasKey() bool {
	return c != nil && c.key != nil
}

// OpenKey decrypts the signing key into a locked buffer. The caller must
// Destroy the buffer as soon as the key has been used.
func (c *Credentials) OpenKey() (*memguard.LockedBuffer, error) {
	if !c.HasKey() {
		return nil, errors.New("credentials carry no signing key")
	}
	buf, err := c.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open key enclave: %w", err)
	}
	return buf, nil
}

// Authorizer obtains credentials, possibly by asking the user.
type Authorizer interface {
	Authorize(ctx context.Context) (*Credentials, error)
}

// Dialer connects to the store on behalf of authorized credentials.
type Dialer interface {
	Dial(ctx context.Context, creds *Credentials) (gridstore.Contract, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, creds *Credentials) (gridstore.Contract, error)

func (f DialerFunc) Dial(ctx context.Context, creds *Credentials) (gridstore.Contract, error) {
	return f(ctx, creds)
}

// Ready is an authorized, connected session. It is immutable.
type Ready struct {
	id       uuid.UUID
	account  string
	contract gridstore.Contract
	opened   time.Time
}

func (r *Ready) ID() uuid.UUID                { return r.id }
func (r *Ready) Account() string              { return r.account }
func (r *Ready) Contract() gridstore.Contract { return r.contract }
func (r *Ready) OpenedAt() time.Time          { return r.opened }

// Close releases the store connection.
func (r *Ready) Close() error {
	return r.contract.Close()
}

// Open authorizes and dials.
//
// # Description
//
// Runs auth, then dial with the resulting credentials. Any failure,
// including a nil argument or a nil contract from dial, is reported as a
// *DeniedError and no Ready is produced.
//
// # Inputs
//
//   - ctx: Bounds both stages.
//   - auth: Credential source.
//   - dial: Store connector.
//
// # Outputs
//
//   - *Ready: The session handle.
//   - error: Matches ErrAuthorizationDenied on failure.
func Open(ctx context.Context, auth Authorizer, dial Dialer) (*Ready, error) {
	if auth == nil {
		return nil, &DeniedError{Stage: "authorize", Err: errors.New("no authorizer configured")}
	}
	if dial == nil {
		return nil, &DeniedError{Stage: "dial", Err: errors.New("no dialer configured")}
	}

	creds, err := auth.Authorize(ctx)
	if err != nil {
		return nil, &DeniedError{Stage: "authorize", Err: err}
	}
	if creds == nil || creds.Account == "" {
		return nil, &DeniedError{Stage: "authorize", Err: errors.New("no account granted")}
	}

	contract, err := dial.Dial(ctx, creds)
	if err != nil {
		return nil, &DeniedError{Stage: "dial", Err: err}
	}
	if contract == nil {
		return nil, &DeniedError{Stage: "dial", Err: errors.New("dialer returned no store")}
	}

	return &Ready{
		id:       uuid.New(),
		account:  creds.Account,
		contract: contract,
		opened:   time.Now(),
	}, nil
}
