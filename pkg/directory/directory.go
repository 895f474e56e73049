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

// Package directory publishes an agent's key directory, the JSON document a
// verifier fetches from /.well-known/http-message-signatures-directory to
// obtain the agent's public keys and optional display metadata.
package directory

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// WellKnownPath is where agents conventionally serve their key directory.
const WellKnownPath = "/.well-known/http-message-signatures-directory"

// ContentType is the media type of a key directory document.
const ContentType = "application/http-message-signatures-directory+json"

// Document is the published key directory: a JWKS plus optional operator
// metadata. ClientName is the display name verifiers surface to origins.
type Document struct {
	Keys       []json.RawMessage `json:"keys"`
	ClientName string            `json:"client_name,omitempty"`
	Purpose    string            `json:"purpose,omitempty"`
}

// NewDocument builds a Document from a key set. Private key material is
// stripped; only public halves are published.
func NewDocument(set jwk.Set, clientName, purpose string) (*Document, error) {
	doc := &Document{
		Keys:       []json.RawMessage{},
		ClientName: clientName,
		Purpose:    purpose,
	}
	for i := 0; i < set.Len(); i++ {
		key, _ := set.Key(i)
		pub, err := jwk.PublicKeyOf(key)
		if err != nil {
			return nil, fmt.Errorf("public key of %q: %w", key.KeyID(), err)
		}
		raw, err := json.Marshal(pub)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", key.KeyID(), err)
		}
		doc.Keys = append(doc.Keys, raw)
	}
	return doc, nil
}

// Handler serves the document as a GET endpoint, typically mounted at
// WellKnownPath.
func Handler(doc *Document) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", ContentType)
		if r.Method == http.MethodHead {
			return
		}
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			// Response already started; nothing useful left to do.
			return
		}
	})
}
