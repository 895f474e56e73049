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

package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sage-x-project/webbotauth/pkg/httpsig"
)

// ErrSensitiveHeaderCovered indicates the signature covers a credential
// header. Such a request cannot be verified remotely without leaking the
// credential, so forwarding refuses outright.
var ErrSensitiveHeaderCovered = errors.New("signature covers a sensitive header")

// sensitiveHeaders are never forwarded to a remote verifier.
var sensitiveHeaders = map[string]struct{}{
	"cookie":              {},
	"authorization":       {},
	"proxy-authorization": {},
	"www-authenticate":    {},
}

// ExtractForwardedHeaders selects the headers a remote verifier needs: the
// signature header triple plus every covered header, with credential headers
// withheld. Header keys come back lowercased, matching the verify contract.
func ExtractForwardedHeaders(h http.Header) (map[string]string, error) {
	out := make(map[string]string)
	for _, name := range []string{"signature-input", "signature", "signature-agent"} {
		if v := h.Get(name); v != "" {
			out[name] = v
		}
	}

	sigInput, ok := out["signature-input"]
	if !ok {
		return out, nil
	}
	all, err := httpsig.ParseSignatureInputAll(sigInput)
	if err != nil {
		// Unparseable input is forwarded as-is; the verifier owns rejection.
		return out, nil
	}

	for _, sc := range all {
		for _, comp := range sc.Covered {
			if strings.HasPrefix(comp.Name, "@") {
				continue
			}
			if _, bad := sensitiveHeaders[comp.Name]; bad {
				return nil, fmt.Errorf("%w: %q", ErrSensitiveHeaderCovered, comp.Name)
			}
			if v := h.Get(comp.Name); v != "" {
				out[comp.Name] = v
			}
		}
	}
	return out, nil
}
