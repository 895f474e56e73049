// Copyright (C) 2025 SAGE-X Project
//
// This file is part of webbotauth.
//
// webbotauth is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// webbotauth is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with webbotauth.  If not, see <https://www.gnu.org/licenses/>.

// Package replay guards signatures against reuse: clock-skew bounds on the
// created/expires parameters and single-use nonce claims scoped to the
// signing key.
package replay

import (
	"errors"
	"time"
)

const (
	// DefaultMaxSkew is the default tolerated clock skew for created.
	DefaultMaxSkew = 5 * time.Minute

	// DefaultNonceTTL is how long a claimed nonce stays claimed.
	DefaultNonceTTL = 10 * time.Minute
)

var (
	// ErrCreatedInFuture indicates created exceeds the skew window ahead of
	// the wall clock.
	ErrCreatedInFuture = errors.New("created timestamp too far in the future")

	// ErrCreatedTooOld indicates created exceeds the skew window behind the
	// wall clock.
	ErrCreatedTooOld = errors.New("created timestamp too old")

	// ErrExpiresBeforeCreated indicates an expires earlier than created.
	ErrExpiresBeforeCreated = errors.New("expires precedes created")

	// ErrSignatureExpired indicates expires is already in the past.
	ErrSignatureExpired = errors.New("signature expired")
)

// CheckTimestamp validates the created/expires pair against now. created must
// lie within maxSkew of now on either side; expires must not precede created
// and must not already have passed. Pure, no I/O.
func CheckTimestamp(created, expires int64, maxSkew time.Duration, now time.Time) error {
	skew := int64(maxSkew / time.Second)
	nowUnix := now.Unix()

	if created > nowUnix+skew {
		return ErrCreatedInFuture
	}
	if created < nowUnix-skew {
		return ErrCreatedTooOld
	}
	if expires < created {
		return ErrExpiresBeforeCreated
	}
	if expires < nowUnix {
		return ErrSignatureExpired
	}
	return nil
}
