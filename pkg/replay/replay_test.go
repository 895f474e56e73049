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

package replay

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckTimestamp_Boundaries(t *testing.T) {
	now := time.Unix(1735689600, 0)
	skew := 300 * time.Second

	tests := []struct {
		name    string
		created int64
		expires int64
		wantErr error
	}{
		{"fresh", now.Unix(), now.Unix() + 300, nil},
		{"created at skew boundary", now.Unix() - 300, now.Unix() + 300, nil},
		{"created one past skew boundary", now.Unix() - 301, now.Unix() + 300, ErrCreatedTooOld},
		{"created at future boundary", now.Unix() + 300, now.Unix() + 600, nil},
		{"created one past future boundary", now.Unix() + 301, now.Unix() + 600, ErrCreatedInFuture},
		{"expires equal to created", now.Unix(), now.Unix(), nil},
		{"expires before created", now.Unix(), now.Unix() - 1, ErrExpiresBeforeCreated},
		{"already expired", now.Unix() - 200, now.Unix() - 100, ErrSignatureExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTimestamp(tt.created, tt.expires, skew, now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCheckNonce_FirstClaimWinsOnly(t *testing.T) {
	g := NewGuard(NewMemoryStore(), time.Minute)

	assert.True(t, g.CheckNonce("n1", "https://a.example/jwks.json", "k1"))
	assert.False(t, g.CheckNonce("n1", "https://a.example/jwks.json", "k1"))
}

func TestCheckNonce_ScopedByURLAndKid(t *testing.T) {
	g := NewGuard(NewMemoryStore(), time.Minute)

	assert.True(t, g.CheckNonce("n1", "https://a.example/jwks.json", "k1"))
	assert.True(t, g.CheckNonce("n1", "https://b.example/jwks.json", "k1"))
	assert.True(t, g.CheckNonce("n1", "https://a.example/jwks.json", "k2"))
}

func TestCheckNonce_ConcurrentClaimsExactlyOneSucceeds(t *testing.T) {
	g := NewGuard(NewMemoryStore(), time.Minute)

	const n = 64
	var fresh atomic.Int32
	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer done.Done()
			start.Wait()
			if g.CheckNonce("raced", "https://a.example/jwks.json", "k1") {
				fresh.Add(1)
			}
		}()
	}
	start.Done()
	done.Wait()

	assert.Equal(t, int32(1), fresh.Load())
}

func TestMemoryStore_ExpiredClaimIsReusable(t *testing.T) {
	now := time.Unix(1000, 0)
	store := NewMemoryStore()
	store.Now = func() time.Time { return now }

	assert.True(t, store.Claim("k", time.Minute))
	assert.False(t, store.Claim("k", time.Minute))

	now = now.Add(2 * time.Minute)
	assert.True(t, store.Claim("k", time.Minute))
}

func TestMemoryStore_DeleteAndClear(t *testing.T) {
	store := NewMemoryStore()

	assert.True(t, store.Claim("k", time.Hour))
	store.Delete("k")
	assert.True(t, store.Claim("k", time.Hour))

	store.Clear()
	assert.True(t, store.Claim("k", time.Hour))
}
