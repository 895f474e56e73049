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
	"crypto/sha256"
	"encoding/hex"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Store records claimed nonces. Claim must be atomic against concurrent
// callers: of N simultaneous claims of the same key, exactly one may return
// true. Any key-value store with SETNX-plus-TTL semantics satisfies this.
type Store interface {
	// Claim records key for ttl and reports whether it was fresh.
	Claim(key string, ttl time.Duration) bool

	// Delete forgets a single key.
	Delete(key string)

	// Clear forgets every key.
	Clear()
}

// Guard enforces single-use nonces scoped to a (jwks URL, kid) pair.
type Guard struct {
	store Store
	ttl   time.Duration
}

// NewGuard creates a Guard. A nil store gets an in-memory one; a
// non-positive ttl gets DefaultNonceTTL.
func NewGuard(store Store, ttl time.Duration) *Guard {
	if store == nil {
		store = NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &Guard{store: store, ttl: ttl}
}

// CheckNonce claims nonce within the scope of (jwksURL, kid) and reports
// whether it was fresh. false means replay.
func (g *Guard) CheckNonce(nonce, jwksURL, kid string) bool {
	return g.store.Claim(scopeKey(jwksURL, kid)+":"+nonce, g.ttl)
}

// scopeKey hashes the (jwksURL, kid) pair so one agent's nonces cannot
// collide with another's.
func scopeKey(jwksURL, kid string) string {
	h := sha256.Sum256([]byte(jwksURL + "\x00" + kid))
	return hex.EncodeToString(h[:])
}

// MemoryStore is a Store backed by a sharded concurrent map. The claim runs
// inside the shard lock, which gives the required atomicity; expired entries
// are reclaimed lazily on collision.
type MemoryStore struct {
	m cmap.ConcurrentMap[string, time.Time]

	// Now substitutes the clock, for tests.
	Now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: cmap.New[time.Time]()}
}

func (s *MemoryStore) Claim(key string, ttl time.Duration) bool {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	at := now()

	fresh := false
	s.m.Upsert(key, at.Add(ttl), func(exist bool, expiry, newExpiry time.Time) time.Time {
		if !exist || at.After(expiry) {
			fresh = true
			return newExpiry
		}
		return expiry
	})
	return fresh
}

func (s *MemoryStore) Delete(key string) {
	s.m.Remove(key)
}

func (s *MemoryStore) Clear() {
	s.m.Clear()
}
