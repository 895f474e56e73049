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

// Package webbotauth provides version information for the library and the
// protocol documents it implements.
package webbotauth

const (
	// Version is the current version of webbotauth
	Version = "1.0.0-dev"

	// MessageSignaturesRFC is the HTTP Message Signatures specification this library implements
	// See: https://www.rfc-editor.org/rfc/rfc9421
	MessageSignaturesRFC = "RFC 9421"

	// StructuredFieldsRFC is the structured field values specification used on the wire
	StructuredFieldsRFC = "RFC 8941"

	// WebBotAuthDraft is the agent authentication architecture draft this library follows
	// See: https://datatracker.ietf.org/doc/draft-meunier-web-bot-auth-architecture/
	WebBotAuthDraft = "draft-meunier-web-bot-auth-architecture-03"
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	LibraryVersion       string
	MessageSignaturesRFC string
	StructuredFieldsRFC  string
	WebBotAuthDraft      string
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		LibraryVersion:       Version,
		MessageSignaturesRFC: MessageSignaturesRFC,
		StructuredFieldsRFC:  StructuredFieldsRFC,
		WebBotAuthDraft:      WebBotAuthDraft,
	}
}
