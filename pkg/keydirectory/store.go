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

package keydirectory

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Entry is one cached key-set document. Expiry is pull-based: an entry is
// stale once its wall-clock age reaches the cache TTL, there is no eviction
// thread.
type Entry struct {
	// Set is the parsed key set.
	Set jwk.Set

	// Raw is the document as fetched.
	Raw []byte

	// ClientName is the document-level client_name, if any.
	ClientName string

	// KeyClientNames maps kid to a per-key client_name, if any.
	KeyClientNames map[string]string

	// FetchedAt is when the document was retrieved.
	FetchedAt time.Time
}

// Store is the cache backing for key-set documents, keyed by exact URL
// string. It is an explicit dependency of the cache so tests can substitute
// their own implementation.
type Store interface {
	Get(url string) (Entry, bool)
	Set(url string, e Entry)
	Delete(url string)
	Clear()
}

// MemoryStore is a Store backed by a sharded concurrent map. Writes are
// last-write-wins, which is safe here since entries are idempotent per
// URL and time window.
type MemoryStore struct {
	m cmap.ConcurrentMap[string, Entry]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: cmap.New[Entry]()}
}

func (s *MemoryStore) Get(url string) (Entry, bool) {
	return s.m.Get(url)
}

func (s *MemoryStore) Set(url string, e Entry) {
	s.m.Set(url, e)
}

func (s *MemoryStore) Delete(url string) {
	s.m.Remove(url)
}

func (s *MemoryStore) Clear() {
	s.m.Clear()
}
