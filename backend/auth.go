// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"net/http"
	"strings"
)

type contextKey struct{}

// userIDKey is the context key for the authenticated user's ID (email).
// The associated value is always a string.
var userIDKey contextKey

// getUserID returns the UserID from the request context, if present.
func getUserID(r *http.Request) string {
	if val := r.Context().Value(userIDKey); val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

// normalizeEmail ensures consistent casing and whitespace for User IDs.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// maskEmail obscures an email address for safe logging.
// e.g. "user@example.com" -> "u***@example.com"
func maskEmail(email string) string {
	if email == "" {
		return "<empty>"
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return "****"
	}
	return local[:1] + "***@" + domain
}

type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessRead
	AccessWrite
	AccessAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case AccessRead:
		return PermissionRead
	case AccessWrite:
		return PermissionWrite
	case AccessAdmin:
		return PermissionAdmin
	}
	return PermissionNone
}

func parseAccessLevel(s string) AccessLevel {
	switch s {
	case PermissionAdmin:
		return AccessAdmin
	case PermissionWrite:
		return AccessWrite
	case PermissionRead:
		return AccessRead
	}
	return AccessNone
}

// GetTournamentAccess calculates the effective access level for a user on
// a tournament. The owner is an admin; shared users get their listed role;
// anyone gets read access to a public tournament.
func GetTournamentAccess(userId string, meta TournamentMetadata) AccessLevel {
	if meta.Status == StatusDeleted {
		return AccessNone
	}
	userId = normalizeEmail(userId)
	if userId != "" && normalizeEmail(meta.OwnerID) == userId {
		return AccessAdmin
	}
	level := AccessNone
	if userId != "" {
		for u, role := range meta.Permissions.Users {
			if normalizeEmail(u) == userId {
				level = max(level, parseAccessLevel(role))
			}
		}
	}
	if meta.Permissions.Public == PermissionRead {
		level = max(level, AccessRead)
	}
	return level
}
