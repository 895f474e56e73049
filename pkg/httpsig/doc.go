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

// Package httpsig parses the RFC 9421 signature headers and reconstructs the
// canonical signature base.
//
// # Parsing
//
// Signature-Input is an RFC 8941 dictionary mapping a signature label to an
// inner list of covered components plus signature parameters:
//
//	sig1=("@method" "@authority" "signature-agent");created=1735689600;expires=1735689900;keyid="...";tag="web-bot-auth"
//
// ParseSignatureInput selects one labeled entry and returns its parsed
// parameters together with the verbatim raw-parameter substring, which the
// signature base must reproduce byte for byte:
//
//	sc, err := httpsig.ParseSignatureInput(input, "sig1")
//
// Signature is a dictionary of byte sequences correlated by the same label:
//
//	sig, err := httpsig.ParseSignature(signature, sc.Label)
//
// # Signature base
//
// BuildSignatureBase emits one line per covered component, in order, using
// the derived-component rules of RFC 9421 (@method, @path, @authority,
// @target-uri, @request-target) and case-insensitive header lookup for the
// rest. A covered header that is absent from the request fails the whole
// build. Components with a ;key= selector extract a single member from a
// dictionary-valued header, which is how the signature binds to one entry of
// a multi-agent Signature-Agent header.
package httpsig
