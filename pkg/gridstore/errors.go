// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gridstore

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable matches transport and connectivity failures.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrMutationRejected matches store-side validation or consensus
	// failures of a mutation.
	ErrMutationRejected = errors.New("mutation rejected by remote store")

	// ErrNotificationsUnsupported is returned by Client.Notifications when
	// the backend cannot stream events.
	ErrNotificationsUnsupported = errors.New("backend does not stream notifications")
)

// Kind classifies a RemoteError.
type Kind int

const (
	KindUnavailable Kind = iota
	KindRejected
)

func (k Kind) String() string {
	if k == KindRejected {
		return "rejected"
	}
	return "unavailable"
}

// RemoteError is a classified failure of one store call.
//
// errors.Is(err, ErrRemoteUnavailable) and errors.Is(err, ErrMutationRejected)
// select on Kind; Unwrap exposes the backend error.
type RemoteError struct {
	Op      string
	Kind    Kind
	Wrapped error
}

func (e *RemoteError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Wrapped)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Wrapped)
}

func (e *RemoteError) Unwrap() error {
	return e.Wrapped
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteUnavailable:
		return e.Kind == KindUnavailable
	case ErrMutationRejected:
		return e.Kind == KindRejected
	}
	return false
}

var _ error = (*RemoteError)(nil)

// Rejected marks err as a store-side refusal. Backends call it for reverted
// transactions and validation failures.
func Rejected(err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Kind: KindRejected, Wrapped: err}
}

// Unavailable marks err as a connectivity failure.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Kind: KindUnavailable, Wrapped: err}
}

// classify returns err as a *RemoteError carrying op. Unclassified errors
// become KindUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return &RemoteError{Op: op, Kind: re.Kind, Wrapped: re.Wrapped}
	}
	return &RemoteError{Op: op, Kind: KindUnavailable, Wrapped: err}
}
