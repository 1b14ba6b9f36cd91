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
	"fmt"
	"strings"
)

// AccessControl manages who may use the service and how many tournaments
// they may own.
type AccessControl struct {
	r *Registry
	// Bootstrap admin email (from flag)
	bootstrapAdmin string
}

// NewAccessControl creates a new AccessControl service.
func NewAccessControl(r *Registry, bootstrapAdmin string) *AccessControl {
	return &AccessControl{
		r:              r,
		bootstrapAdmin: normalizeEmail(bootstrapAdmin),
	}
}

func (ac *AccessControl) isListedAdmin(email string, policy *UserAccessPolicy) bool {
	if ac.bootstrapAdmin != "" && email == ac.bootstrapAdmin {
		return true
	}
	if policy == nil {
		return false
	}
	for _, admin := range policy.Admins {
		if strings.EqualFold(admin, email) {
			return true
		}
	}
	return false
}

// IsAllowed checks if a user is allowed to access the service.
// Returns allowed status and a denial message (if denied).
func (ac *AccessControl) IsAllowed(email string) (bool, string) {
	if email == "" {
		return false, "Authentication required"
	}
	email = normalizeEmail(email)
	policy := ac.r.GetAccessPolicy()
	if ac.isListedAdmin(email, policy) || policy == nil {
		return true, ""
	}
	if override, ok := policy.Users[email]; ok {
		if override.Access == "deny" {
			return false, policy.DefaultDenyMessage
		}
		return true, ""
	}
	if policy.DefaultPolicy == "deny" {
		return false, policy.DefaultDenyMessage
	}
	return true, ""
}

// IsAdmin checks if a user has service admin privileges.
func (ac *AccessControl) IsAdmin(email string) bool {
	if email == "" {
		return false
	}
	return ac.isListedAdmin(normalizeEmail(email), ac.r.GetAccessPolicy())
}

// MaxTournaments returns the user's tournament quota. Zero means
// unlimited and a negative value means none.
func (ac *AccessControl) MaxTournaments(email string) int {
	policy := ac.r.GetAccessPolicy()
	if policy == nil {
		return 0
	}
	limit := policy.DefaultMaxTournaments
	if override, ok := policy.Users[normalizeEmail(email)]; ok && override.MaxTournaments != 0 {
		limit = override.MaxTournaments
	}
	return limit
}

// CheckTournamentQuota verifies if a user can create a new tournament.
func (ac *AccessControl) CheckTournamentQuota(email string) error {
	if ac.IsAdmin(email) {
		return nil
	}
	limit := ac.MaxTournaments(email)
	if limit < 0 || (limit > 0 && ac.r.CountOwnedTournaments(email) >= limit) {
		return fmt.Errorf("%w: tournament limit reached (%d)", ErrForbidden, limit)
	}
	return nil
}
