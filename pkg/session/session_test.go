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
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/gridstore/gridstoretest"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testKeyAddress(t *testing.T) string {
	t.Helper()
	pk, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(pk.PublicKey).Hex()
}

func fakeDialer(fake *gridstoretest.Fake) Dialer {
	return DialerFunc(func(ctx context.Context, creds *Credentials) (gridstore.Contract, error) {
		return fake, nil
	})
}

type authorizerFunc func(ctx context.Context) (*Credentials, error)

func (f authorizerFunc) Authorize(ctx context.Context) (*Credentials, error) { return f(ctx) }

// =============================================================================
// Open
// =============================================================================

func TestOpen_Success(t *testing.T) {
	fake := gridstoretest.NewFake(grid.New(2, 2))
	ready, err := Open(context.Background(), Account{Name: "alice"}, fakeDialer(fake))
	require.NoError(t, err)

	assert.Equal(t, "alice", ready.Account())
	assert.NotEqual(t, [16]byte{}, [16]byte(ready.ID()))
	assert.Same(t, fake, ready.Contract())
	assert.False(t, ready.OpenedAt().IsZero())

	require.NoError(t, ready.Close())
	assert.True(t, fake.Closed())
}

func TestOpen_AuthorizationFailureIsDenied(t *testing.T) {
	dialed := false
	dial := DialerFunc(func(ctx context.Context, creds *Credentials) (gridstore.Contract, error) {
		dialed = true
		return nil, nil
	})

	_, err := Open(context.Background(), Account{}, dial)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
	assert.False(t, dialed, "store must not be contacted without authorization")

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "authorize", denied.Stage)
}

func TestOpen_DialFailureKeepsCause(t *testing.T) {
	dial := DialerFunc(func(ctx context.Context, creds *Credentials) (gridstore.Contract, error) {
		return nil, gridstore.Unavailable(errors.New("connection refused"))
	})

	_, err := Open(context.Background(), Account{Name: "bob"}, dial)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
	assert.ErrorIs(t, err, gridstore.ErrRemoteUnavailable)
}

func TestOpen_NilArguments(t *testing.T) {
	fake := gridstoretest.NewFake(grid.New(1, 1))

	_, err := Open(context.Background(), nil, fakeDialer(fake))
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	_, err = Open(context.Background(), Account{Name: "a"}, nil)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	nilStore := DialerFunc(func(ctx context.Context, creds *Credentials) (gridstore.Contract, error) {
		return nil, nil
	})
	_, err = Open(context.Background(), Account{Name: "a"}, nilStore)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestOpen_EmptyCredentialsDenied(t *testing.T) {
	auth := authorizerFunc(func(ctx context.Context) (*Credentials, error) {
		return &Credentials{}, nil
	})
	_, err := Open(context.Background(), auth, fakeDialer(gridstoretest.NewFake(grid.New(1, 1))))
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestOpen_PassesCredentialsToDialer(t *testing.T) {
	t.Setenv("AUTOMATA_TEST_KEY", "0x"+testKey)
	fake := gridstoretest.NewFake(grid.New(1, 1))

	var got *Credentials
	dial := DialerFunc(func(ctx context.Context, creds *Credentials) (gridstore.Contract, error) {
		got = creds
		return fake, nil
	})

	ready, err := Open(context.Background(), EnvKey{Var: "AUTOMATA_TEST_KEY"}, dial)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.HasKey())
	assert.Equal(t, testKeyAddress(t), ready.Account())
}

// =============================================================================
// Authorizers
// =============================================================================

func TestAccount_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Account{Name: "alice"}.Authorize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnvKey(t *testing.T) {
	t.Run("sealed key round trips", func(t *testing.T) {
		t.Setenv(DefaultKeyEnv, testKey)
		creds, err := EnvKey{}.Authorize(context.Background())
		require.NoError(t, err)
		assert.Equal(t, testKeyAddress(t), creds.Account)

		buf, err := creds.OpenKey()
		require.NoError(t, err)
		defer buf.Destroy()
		pk, err := crypto.ToECDSA(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, creds.Account, crypto.PubkeyToAddress(pk.PublicKey).Hex())
	})

	t.Run("missing variable", func(t *testing.T) {
		_, err := EnvKey{Var: "AUTOMATA_TEST_UNSET_KEY"}.Authorize(context.Background())
		assert.Error(t, err)
	})

	t.Run("malformed key", func(t *testing.T) {
		t.Setenv("AUTOMATA_TEST_KEY", "not-hex")
		_, err := EnvKey{Var: "AUTOMATA_TEST_KEY"}.Authorize(context.Background())
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("short key", func(t *testing.T) {
		t.Setenv("AUTOMATA_TEST_KEY", "abcd")
		_, err := EnvKey{Var: "AUTOMATA_TEST_KEY"}.Authorize(context.Background())
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestCredentials_NoKey(t *testing.T) {
	creds := &Credentials{Account: "alice"}
	assert.False(t, creds.HasKey())
	_, err := creds.OpenKey()
	assert.Error(t, err)
}

func TestPromptKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		consent bool
		err     error
		wantErr error
	}{
		{name: "granted", key: testKey, consent: true},
		{name: "declined", key: testKey, consent: false, wantErr: ErrConsentDeclined},
		{name: "aborted", err: huh.ErrUserAborted, wantErr: ErrConsentDeclined},
		{name: "bad key", key: "zz", consent: true, wantErr: ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PromptKey{prompt: func(ctx context.Context, accessible bool) (string, bool, error) {
				return tt.key, tt.consent, tt.err
			}}
			creds, err := p.Authorize(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testKeyAddress(t), creds.Account)
		})
	}
}

func TestPromptKey_DeniedThroughOpen(t *testing.T) {
	p := PromptKey{prompt: func(ctx context.Context, accessible bool) (string, bool, error) {
		return "", false, huh.ErrUserAborted
	}}
	_, err := Open(context.Background(), p, fakeDialer(gridstoretest.NewFake(grid.New(1, 1))))
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
	assert.ErrorIs(t, err, ErrConsentDeclined)
}
