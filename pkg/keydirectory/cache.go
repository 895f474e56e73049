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

// Package keydirectory caches JSON Web Key Sets published by agents and looks
// up individual keys by kid, including the legacy truncated-thumbprint
// compatibility fallback.
package keydirectory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sage-x-project/webbotauth/pkg/safefetch"
)

// DefaultTTL is how long a fetched key set stays fresh.
const DefaultTTL = time.Hour

var (
	// ErrInvalidJWKS indicates the fetched document is not a key set.
	ErrInvalidJWKS = errors.New("invalid jwks document")

	// ErrKeyNotFound indicates no key matched the requested kid, exactly or
	// through the thumbprint fallback.
	ErrKeyNotFound = errors.New("key not found")

	// ErrAmbiguousKid indicates more than one key matched under the
	// compatibility fallback. Silently picking one would be a
	// security-relevant inconsistency.
	ErrAmbiguousKid = errors.New("ambiguous kid match")
)

// Cache is a TTL cache of key-set documents keyed by URL. Concurrent
// refreshes of the same URL are collapsed into a single fetch.
type Cache struct {
	store   Store
	fetcher *safefetch.Client
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time
	group   singleflight.Group
}

// CacheOptions configures a Cache. The zero value of every field has a
// usable default.
type CacheOptions struct {
	Store   Store
	Fetcher *safefetch.Client
	TTL     time.Duration
	Logger  *zap.Logger

	// Now substitutes the clock, for tests.
	Now func() time.Time
}

// NewCache creates a Cache.
func NewCache(opts CacheOptions) *Cache {
	c := &Cache{
		store:   opts.Store,
		fetcher: opts.Fetcher,
		ttl:     opts.TTL,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if c.fetcher == nil {
		c.fetcher = &safefetch.Client{}
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// GetJWKS returns the key set for url, fetching it when absent or stale.
func (c *Cache) GetJWKS(ctx context.Context, url string) (Entry, error) {
	if e, ok := c.store.Get(url); ok && c.now().Sub(e.FetchedAt) < c.ttl {
		return e, nil
	}

	v, err, _ := c.group.Do(url, func() (interface{}, error) {
		body, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			return Entry{}, fmt.Errorf("fetch jwks %s: %w", url, err)
		}
		e, err := parseDirectory(body)
		if err != nil {
			return Entry{}, fmt.Errorf("%s: %w", url, err)
		}
		e.FetchedAt = c.now()
		c.store.Set(url, e)
		c.log.Debug("jwks refreshed", zap.String("url", url), zap.Int("keys", e.Set.Len()))
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// GetKey fetches the key set for url and returns the key whose kid equals
// the requested one. When no exact match exists, the legacy compatibility
// fallback matches keys whose full or truncated thumbprint equals the
// requested kid; more than one fallback match is an error.
func (c *Cache) GetKey(ctx context.Context, url, kid string) (jwk.Key, error) {
	entry, err := c.GetJWKS(ctx, url)
	if err != nil {
		return nil, err
	}

	for i := 0; i < entry.Set.Len(); i++ {
		key, ok := entry.Set.Key(i)
		if ok && key.KeyID() == kid {
			return key, nil
		}
	}

	return matchByThumbprint(entry.Set, kid)
}

// ClientName surfaces the optional client_name for a key: the per-key value
// wins over the document-level one. Empty when neither is present. The per-key
// map is indexed by declared kid, so the key is resolved first; a key reached
// through the thumbprint fallback declares a different kid than the queried
// one.
func (c *Cache) ClientName(ctx context.Context, url, kid string) string {
	entry, err := c.GetJWKS(ctx, url)
	if err != nil {
		return ""
	}
	if key, err := c.GetKey(ctx, url, kid); err == nil {
		if name, ok := entry.KeyClientNames[key.KeyID()]; ok {
			return name
		}
	}
	return entry.ClientName
}

// Invalidate drops a single URL from the cache.
func (c *Cache) Invalidate(url string) {
	c.store.Delete(url)
}

// Reset drops every cached entry.
func (c *Cache) Reset() {
	c.store.Clear()
}

// matchByThumbprint is the legacy-kid compatibility shim: key ids in the wild
// are either the full RFC 7638 thumbprint or a truncated form of it, so when
// the declared kid does not match we recompute both for every key. Kept as a
// single named function so it can be audited or removed independently of the
// main lookup path.
func matchByThumbprint(set jwk.Set, kid string) (jwk.Key, error) {
	var matches []jwk.Key
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		full, err := Thumbprint(key)
		if err != nil {
			continue
		}
		if full == kid || legacyThumbprint(full) == kid {
			matches = append(matches, key)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: kid %q matches %d keys", ErrAmbiguousKid, kid, len(matches))
	}
}

func parseDirectory(raw []byte) (Entry, error) {
	var doc struct {
		Keys       []json.RawMessage `json:"keys"`
		ClientName string            `json:"client_name"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidJWKS, err)
	}
	if doc.Keys == nil {
		return Entry{}, fmt.Errorf("%w: missing keys array", ErrInvalidJWKS)
	}

	set, err := jwk.Parse(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidJWKS, err)
	}

	entry := Entry{
		Set:        set,
		Raw:        raw,
		ClientName: doc.ClientName,
	}
	for _, rawKey := range doc.Keys {
		var fields struct {
			Kid        string `json:"kid"`
			ClientName string `json:"client_name"`
		}
		if err := json.Unmarshal(rawKey, &fields); err != nil {
			continue
		}
		if fields.Kid != "" && fields.ClientName != "" {
			if entry.KeyClientNames == nil {
				entry.KeyClientNames = make(map[string]string)
			}
			entry.KeyClientNames[fields.Kid] = fields.ClientName
		}
	}
	return entry, nil
}
