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
	"cmp"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
	"github.com/ttbt-io/wicketkeeper/backend/search"
)

// Registry manages the global index of tournaments for all users. It
// answers listing and access questions without loading tournament files.
type Registry struct {
	store *TournamentStore

	mu sync.RWMutex

	// Metadata cache for sorting and filtering. Tombstones are cached too
	// (Status="deleted").
	metadata *lru.Cache[string, TournamentMetadata]

	// access maps user -> tournament -> level. The empty user holds
	// public access.
	access map[string]map[string]AccessLevel
	live   map[string]bool

	accessPolicy *UserAccessPolicy
}

// NewRegistry creates a new Registry and indexes every stored tournament.
func NewRegistry(ts *TournamentStore) *Registry {
	cache, _ := lru.New[string, TournamentMetadata](5000)
	r := &Registry{
		store:    ts,
		metadata: cache,
		access:   make(map[string]map[string]AccessLevel),
		live:     make(map[string]bool),
	}
	r.Rebuild()
	return r
}

// Rebuild reconstructs the index by scanning the store. Expired tombstones
// are purged on the way.
func (r *Registry) Rebuild() {
	log.Println("Registry: Rebuild started...")
	cutoff := time.Now().Add(-tombstoneRetention).UnixNano()

	r.mu.Lock()
	r.access = make(map[string]map[string]AccessLevel)
	r.live = make(map[string]bool)
	r.mu.Unlock()
	r.metadata.Purge()

	for m, err := range r.store.ListAllTournamentMetadata() {
		if err != nil {
			log.Printf("Registry: Error listing tournaments: %v", err)
			break
		}
		if m.Status == StatusDeleted && m.DeletedAt > 0 && m.DeletedAt < cutoff {
			if err := r.store.PurgeTournament(m.ID); err != nil {
				log.Printf("Registry: purge %s: %v", m.ID, err)
			}
			continue
		}
		r.index(m)
	}

	r.mu.RLock()
	log.Printf("Registry: Rebuild complete. Indexed %d tournaments.", len(r.live))
	r.mu.RUnlock()
}

// index records the metadata and the direct access it grants.
func (r *Registry) index(m TournamentMetadata) {
	r.metadata.Add(m.ID, m)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, users := range r.access {
		delete(users, m.ID)
	}
	if m.Status == StatusDeleted {
		delete(r.live, m.ID)
		return
	}
	r.live[m.ID] = true

	grant := func(user string, level AccessLevel) {
		if level == AccessNone {
			return
		}
		users := r.access[user]
		if users == nil {
			users = make(map[string]AccessLevel)
			r.access[user] = users
		}
		users[m.ID] = max(users[m.ID], level)
	}
	grant(normalizeEmail(m.OwnerID), AccessAdmin)
	for u, role := range m.Permissions.Users {
		grant(normalizeEmail(u), parseAccessLevel(role))
	}
	if m.Permissions.Public == PermissionRead {
		grant("", AccessRead)
	}
}

// UpdateTournament re-indexes a tournament after a change.
func (r *Registry) UpdateTournament(t *TournamentRecord) {
	r.index(t.Metadata())
}

// DeleteTournament marks the tournament deleted in the index.
func (r *Registry) DeleteTournament(id string) {
	m, _ := r.getMeta(id)
	r.index(TournamentMetadata{ID: id, OwnerID: m.OwnerID, Status: StatusDeleted, DeletedAt: time.Now().UnixNano()})
}

// getMeta returns cached metadata, loading it from the store on a miss.
func (r *Registry) getMeta(id string) (TournamentMetadata, bool) {
	if m, ok := r.metadata.Get(id); ok {
		return m, true
	}
	t, err := r.store.LoadTournament(id)
	if err != nil {
		return TournamentMetadata{}, false
	}
	m := t.Metadata()
	r.metadata.Add(id, m)
	return m, true
}

// IsDeleted reports whether the tournament is a tombstone.
func (r *Registry) IsDeleted(id string) bool {
	m, ok := r.getMeta(id)
	return ok && m.Status == StatusDeleted
}

// Exists reports whether a live tournament has the id.
func (r *Registry) Exists(id string) bool {
	m, ok := r.getMeta(id)
	return ok && m.Status != StatusDeleted
}

// Metadata returns the indexed metadata of a live tournament.
func (r *Registry) Metadata(id string) (TournamentMetadata, bool) {
	m, ok := r.getMeta(id)
	if !ok || m.Status == StatusDeleted {
		return TournamentMetadata{}, false
	}
	return m, true
}

// GetAccessLevel returns the user's access level on the tournament.
func (r *Registry) GetAccessLevel(userId, id string) AccessLevel {
	m, ok := r.Metadata(id)
	if !ok {
		return AccessNone
	}
	return GetTournamentAccess(userId, m)
}

// CountOwnedTournaments counts the live tournaments the user owns.
func (r *Registry) CountOwnedTournaments(userId string) int {
	userId = normalizeEmail(userId)
	r.mu.RLock()
	ids := make([]string, 0, len(r.access[userId]))
	for id, level := range r.access[userId] {
		if level == AccessAdmin {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	count := 0
	for _, id := range ids {
		if m, ok := r.Metadata(id); ok && normalizeEmail(m.OwnerID) == userId {
			count++
		}
	}
	return count
}

// CountTotal returns the number of live tournaments.
func (r *Registry) CountTotal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

// UpdateAccessPolicy updates the cached access policy.
func (r *Registry) UpdateAccessPolicy(policy *UserAccessPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessPolicy = policy
}

// GetAccessPolicy returns the current access policy.
func (r *Registry) GetAccessPolicy() *UserAccessPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accessPolicy
}

// PurgeOldTombstones permanently deletes expired tombstones from disk.
func (r *Registry) PurgeOldTombstones() int {
	cutoff := time.Now().Add(-tombstoneRetention).UnixNano()
	purged := 0
	for m, err := range r.store.ListAllTournamentMetadata() {
		if err != nil {
			log.Printf("Registry: Error listing tournaments: %v", err)
			break
		}
		if m.Status == StatusDeleted && m.DeletedAt > 0 && m.DeletedAt < cutoff {
			if err := r.store.PurgeTournament(m.ID); err == nil {
				r.metadata.Remove(m.ID)
				purged++
			}
		}
	}
	if purged > 0 {
		log.Printf("Registry: GC complete. Purged %d tournaments.", purged)
	}
	return purged
}

// ListTournaments returns the tournaments visible to the user that match
// the query, sorted by "updated" (default, newest first) or "name".
func (r *Registry) ListTournaments(userId, sortBy, order, query string) []TournamentMetadata {
	if sortBy == "" {
		sortBy = "updated"
	}
	if order == "" {
		order = "asc"
		if sortBy == "updated" {
			order = "desc"
		}
	}
	q := search.Parse(query).Lower("updated")

	userId = normalizeEmail(userId)
	r.mu.RLock()
	seen := make(map[string]bool)
	for _, u := range []string{userId, ""} {
		for id := range r.access[u] {
			seen[id] = true
		}
	}
	r.mu.RUnlock()

	var out []TournamentMetadata
	for id := range seen {
		m, ok := r.Metadata(id)
		if !ok || GetTournamentAccess(userId, m) < AccessRead || !matchesTournament(m, q) {
			continue
		}
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b TournamentMetadata) int {
		var c int
		switch sortBy {
		case "name":
			c = cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		default:
			c = cmp.Compare(a.LastUpdated, b.LastUpdated)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if order == "desc" {
			return -c
		}
		return c
	})
	return out
}

// --- Search Helpers ---

func containsLower(s, substrLower string) bool {
	return strings.Contains(strings.ToLower(s), substrLower)
}

// fuzzyToken matches a lowercased free-text token against the tournament
// name and team names, tolerating skipped characters ("smrcup").
func fuzzyToken(m TournamentMetadata, token string) bool {
	if fuzzy.MatchFold(token, m.Name) {
		return true
	}
	for _, name := range m.TeamNames {
		if fuzzy.MatchFold(token, name) {
			return true
		}
	}
	return false
}

func matchesTournament(m TournamentMetadata, q search.Query) bool {
	for _, token := range q.FreeText {
		if !fuzzyToken(m, token) {
			return false
		}
	}
	for _, f := range q.Filters {
		switch f.Key {
		case "name":
			if !containsLower(m.Name, f.Value) {
				return false
			}
		case "team":
			if !slices.ContainsFunc(m.TeamNames, func(n string) bool { return containsLower(n, f.Value) }) {
				return false
			}
		case "owner":
			if !containsLower(m.OwnerID, f.Value) {
				return false
			}
		case "status":
			switch f.Value {
			case "live":
				if m.LiveMatches == 0 {
					return false
				}
			case "idle":
				if m.LiveMatches > 0 {
					return false
				}
			}
		case "updated":
			day := time.UnixMilli(m.LastUpdated).UTC().Format(time.DateOnly)
			if !checkDateFilter(day, f) {
				return false
			}
		}
	}
	return true
}

func checkDateFilter(dateVal string, f search.Filter) bool {
	switch f.Operator {
	case search.OpEqual:
		return strings.HasPrefix(dateVal, f.Value)
	case search.OpGreater:
		return dateVal > f.Value
	case search.OpGreaterOrEqual:
		return dateVal >= f.Value
	case search.OpLess:
		return dateVal < f.Value
	case search.OpLessOrEqual:
		return dateVal <= f.Value
	case search.OpRange:
		return dateVal >= f.Value && dateVal <= f.MaxValue+"~"
	}
	return true
}

// SearchPlayers returns the players of the tournament whose names match
// the query, best match first.
func SearchPlayers(teams []scoring.Team, query string) []PlayerHit {
	var names []string
	var hits []PlayerHit
	for _, t := range teams {
		for _, p := range t.Players {
			names = append(names, p.Name)
			hits = append(hits, PlayerHit{PlayerID: p.ID, Name: p.Name, TeamID: t.ID, TeamName: t.Name})
		}
	}
	ranks := fuzzy.RankFindFold(query, names)
	slices.SortStableFunc(ranks, func(a, b fuzzy.Rank) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	out := make([]PlayerHit, 0, len(ranks))
	for _, rk := range ranks {
		out = append(out, hits[rk.OriginalIndex])
	}
	return out
}

// PlayerHit is one player search result.
type PlayerHit struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
}
