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

package httpsig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

var (
	// ErrMalformedSignatureInput indicates the Signature-Input header is not a
	// valid RFC 8941 dictionary of inner lists.
	ErrMalformedSignatureInput = errors.New("malformed Signature-Input header")

	// ErrMalformedSignature indicates the Signature header is not a valid
	// dictionary of byte sequences.
	ErrMalformedSignature = errors.New("malformed Signature header")

	// ErrLabelNotFound indicates no dictionary member matched the requested label.
	ErrLabelNotFound = errors.New("signature label not found")

	// ErrNoCoveredComponents indicates the covered-component list is empty.
	ErrNoCoveredComponents = errors.New("signature covers no components")

	// ErrMissingCoveredHeader indicates a covered header is absent from the
	// request. This fails the whole signature base build: silently skipping a
	// covered header would let an attacker strip headers after signing.
	ErrMissingCoveredHeader = errors.New("covered header missing from request")
)

// DefaultAlgorithm is assumed when the signature parameters carry no alg.
const DefaultAlgorithm = "ed25519"

// CoveredComponent is one entry of the covered-component list: either a
// derived component (name starts with "@") or a header name, optionally with
// a ;key="..." dictionary-member selector.
type CoveredComponent struct {
	Name string
	Key  string
}

// Identifier returns the serialized component identifier as it appears on a
// signature base line, e.g. `"@method"` or `"signature-agent";key="sig1"`.
func (c CoveredComponent) Identifier() (string, error) {
	item := httpsfv.NewItem(c.Name)
	if c.Key != "" {
		item.Params.Add("key", c.Key)
	}
	return httpsfv.Marshal(item)
}

// SignatureComponents holds the parsed parameters of one labeled signature
// from the Signature-Input header.
type SignatureComponents struct {
	Label     string
	KeyID     string
	Algorithm string
	Created   *int64
	Expires   *int64
	Nonce     string
	Tag       string
	Covered   []CoveredComponent

	// RawSignatureParams is the verbatim inner-list-plus-parameters substring
	// as it appeared on the wire. The final signature base line must reproduce
	// this text exactly; re-serializing from parsed fields risks semantic
	// drift in parameter order or quoting.
	RawSignatureParams string

	// Signature is the decoded signature bytes, attached after the Signature
	// header has been parsed for the same label.
	Signature []byte
}

// Covers reports whether the covered-component list includes the named
// component (header names are compared lowercase).
func (sc *SignatureComponents) Covers(name string) bool {
	for _, c := range sc.Covered {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ParseSignatureInputAll parses every labeled signature in a Signature-Input
// header value, in dictionary order.
func ParseSignatureInputAll(value string) ([]*SignatureComponents, error) {
	dict, err := httpsfv.UnmarshalDictionary([]string{value})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignatureInput, err)
	}
	if len(dict.Names()) == 0 {
		return nil, ErrMalformedSignatureInput
	}

	var out []*SignatureComponents
	for _, name := range dict.Names() {
		member, _ := dict.Get(name)
		list, ok := member.(httpsfv.InnerList)
		if !ok {
			return nil, fmt.Errorf("%w: member %q is not an inner list", ErrMalformedSignatureInput, name)
		}

		sc := &SignatureComponents{Label: name, Algorithm: DefaultAlgorithm}
		for _, item := range list.Items {
			s, ok := item.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: non-string component in %q", ErrMalformedSignatureInput, name)
			}
			comp := CoveredComponent{Name: strings.ToLower(s)}
			if kv, ok := item.Params.Get("key"); ok {
				ks, ok := kv.(string)
				if !ok {
					return nil, fmt.Errorf("%w: key selector on %q is not a string", ErrMalformedSignatureInput, s)
				}
				comp.Key = ks
			}
			sc.Covered = append(sc.Covered, comp)
		}
		if len(sc.Covered) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoCoveredComponents, name)
		}

		if err := parseSignatureParams(sc, list.Params); err != nil {
			return nil, err
		}

		raw, err := rawParams(value, name)
		if err != nil {
			return nil, err
		}
		sc.RawSignatureParams = raw

		out = append(out, sc)
	}
	return out, nil
}

// ParseSignatureInput parses the Signature-Input header and selects the entry
// matching label, or the first entry when label is empty.
func ParseSignatureInput(value, label string) (*SignatureComponents, error) {
	all, err := ParseSignatureInputAll(value)
	if err != nil {
		return nil, err
	}
	if label == "" {
		return all[0], nil
	}
	for _, sc := range all {
		if sc.Label == label {
			return sc, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrLabelNotFound, label)
}

// ParseSignature parses the Signature header dictionary and returns the
// decoded signature bytes for label, or for the first entry when label is
// empty. The member must be a byte sequence (:base64:).
func ParseSignature(value, label string) ([]byte, error) {
	dict, err := httpsfv.UnmarshalDictionary([]string{value})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	names := dict.Names()
	if len(names) == 0 {
		return nil, ErrMalformedSignature
	}

	if label == "" {
		label = names[0]
	}
	member, ok := dict.Get(label)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLabelNotFound, label)
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return nil, fmt.Errorf("%w: member %q is not an item", ErrMalformedSignature, label)
	}
	sig, ok := item.Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: member %q is not a byte sequence", ErrMalformedSignature, label)
	}
	return sig, nil
}

func parseSignatureParams(sc *SignatureComponents, params *httpsfv.Params) error {
	if params == nil {
		return nil
	}
	for _, name := range params.Names() {
		v, _ := params.Get(name)
		switch name {
		case "created":
			i, ok := v.(int64)
			if !ok {
				return fmt.Errorf("%w: created is not an integer", ErrMalformedSignatureInput)
			}
			sc.Created = &i
		case "expires":
			i, ok := v.(int64)
			if !ok {
				return fmt.Errorf("%w: expires is not an integer", ErrMalformedSignatureInput)
			}
			sc.Expires = &i
		case "keyid":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: keyid is not a string", ErrMalformedSignatureInput)
			}
			sc.KeyID = s
		case "alg":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: alg is not a string", ErrMalformedSignatureInput)
			}
			sc.Algorithm = s
		case "nonce":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: nonce is not a string", ErrMalformedSignatureInput)
			}
			sc.Nonce = s
		case "tag":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: tag is not a string", ErrMalformedSignatureInput)
			}
			sc.Tag = s
		}
	}
	return nil
}

// rawParams extracts the verbatim member value (covered-component list plus
// parameters) for label from a Signature-Input header value, respecting
// quoted strings when splitting on top-level commas.
//
// A label that occurs more than once is rejected outright. Dictionary
// parsing keeps the last occurrence, so on a duplicated label the parsed
// created/expires/nonce and the wire text entering the signature base would
// come from different members; a replayed signature could then be dressed up
// with a fresh second member that passes the freshness and nonce checks.
func rawParams(value, label string) (string, error) {
	start := 0
	inString := false
	escaped := false
	found := ""
	matches := 0
	for i := 0; i <= len(value); i++ {
		if i < len(value) {
			c := value[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			if c == '"' {
				inString = true
				continue
			}
			if c != ',' {
				continue
			}
		}
		segment := strings.TrimSpace(value[start:i])
		start = i + 1
		eq := strings.IndexByte(segment, '=')
		if eq <= 0 {
			continue
		}
		if strings.TrimSpace(segment[:eq]) == label {
			matches++
			found = strings.TrimSpace(segment[eq+1:])
		}
	}
	switch matches {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrLabelNotFound, label)
	case 1:
		return found, nil
	default:
		return "", fmt.Errorf("%w: label %q occurs %d times", ErrMalformedSignatureInput, label, matches)
	}
}
