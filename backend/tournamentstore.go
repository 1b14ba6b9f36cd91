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
	"encoding/json"
	"fmt"
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

const tournamentsDir = "tournaments"

// Permissions defines access control for a tournament.
type Permissions struct {
	Public string            `json:"public"` // "none", "read"
	Users  map[string]string `json:"users"`  // "email": "read"|"write"
}

// TournamentRecord is a tournament as stored on disk: the interchange
// document plus the server-side fields.
type TournamentRecord struct {
	scoring.Tournament

	SchemaVersion int           `json:"schemaVersion"`
	OwnerID       string        `json:"ownerId"`
	Permissions   Permissions   `json:"permissions"`
	Rules         scoring.Rules `json:"rules"`
	Status        string        `json:"status,omitempty"`

	// DeletedAt is the timestamp (Unix Nano) when the tournament was deleted.
	DeletedAt int64 `json:"deletedAt,omitempty"`

	// LastRaftIndex is the index of the last Raft log entry applied to this
	// tournament. Entries at or below it are skipped on replay.
	LastRaftIndex uint64 `json:"lastRaftIndex,omitempty"`

	// RecentActionIDs holds the ids of the most recently applied actions,
	// oldest first.
	RecentActionIDs []string `json:"recentActionIds,omitempty"`
}

func (t *TournamentRecord) normalize() {
	if t.SchemaVersion == 0 {
		t.SchemaVersion = CurrentSchemaVersion
	}
	if t.Permissions.Users == nil {
		t.Permissions.Users = make(map[string]string)
	}
	if t.Teams == nil {
		t.Teams = []scoring.Team{}
	}
	if t.Matches == nil {
		t.Matches = []scoring.Match{}
	}
}

// IsDeleted reports whether the record is a tombstone.
func (t *TournamentRecord) IsDeleted() bool {
	return t.Status == StatusDeleted
}

// Clone returns a deep copy.
func (t *TournamentRecord) Clone() *TournamentRecord {
	b, err := json.Marshal(t)
	if err != nil {
		panic(fmt.Sprintf("clone tournament %s: %v", t.ID, err))
	}
	var c TournamentRecord
	if err := json.Unmarshal(b, &c); err != nil {
		panic(fmt.Sprintf("clone tournament %s: %v", t.ID, err))
	}
	c.normalize()
	return &c
}

// Export returns the interchange document without server-side fields.
func (t *TournamentRecord) Export() scoring.Tournament {
	return t.Clone().Tournament
}

// Match returns the index of the match, or -1.
func (t *TournamentRecord) Match(id string) int {
	for i, m := range t.Matches {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Team returns the index of the team, or -1.
func (t *TournamentRecord) Team(id string) int {
	for i, tm := range t.Teams {
		if tm.ID == id {
			return i
		}
	}
	return -1
}

// Metadata returns the fields needed for indexing.
func (t *TournamentRecord) Metadata() TournamentMetadata {
	meta := TournamentMetadata{
		ID:          t.ID,
		Name:        t.Name,
		OwnerID:     t.OwnerID,
		Permissions: t.Permissions,
		Status:      t.Status,
		DeletedAt:   t.DeletedAt,
		CreatedAt:   t.CreatedAt,
		LastUpdated: t.LastUpdated,
		MatchCount:  len(t.Matches),
	}
	for _, tm := range t.Teams {
		meta.TeamNames = append(meta.TeamNames, tm.Name)
	}
	for _, m := range t.Matches {
		if m.Status == scoring.StatusLive {
			meta.LiveMatches++
		}
	}
	return meta
}

// TournamentMetadata contains only the fields needed for indexing.
type TournamentMetadata struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	OwnerID     string      `json:"ownerId"`
	Permissions Permissions `json:"permissions"`
	Status      string      `json:"status"`
	DeletedAt   int64       `json:"deletedAt"`
	TeamNames   []string    `json:"teamNames,omitempty"`
	MatchCount  int         `json:"matchCount"`
	LiveMatches int         `json:"liveMatches"`
	CreatedAt   int64       `json:"createdAt"`
	LastUpdated int64       `json:"lastUpdated"`
}

// TournamentStore manages tournament persistence to disk.
type TournamentStore struct {
	DataDir string
	Debug   bool
	storage *storage.Storage
	mu      sync.Map // tournament id -> *sync.RWMutex
	cache   sync.Map // tournament id -> latest JSON []byte

	dirtyMu sync.Mutex
	dirty   map[string]bool
}

// NewTournamentStore creates a new TournamentStore.
func NewTournamentStore(dataDir string, s *storage.Storage) *TournamentStore {
	return &TournamentStore{
		DataDir: dataDir,
		storage: s,
		dirty:   make(map[string]bool),
	}
}

func (ts *TournamentStore) lock(id string) *sync.RWMutex {
	m, _ := ts.mu.LoadOrStore(id, &sync.RWMutex{})
	return m.(*sync.RWMutex)
}

func tournamentFiles(id string) (string, string) {
	enc := url.PathEscape(id)
	return filepath.Join(tournamentsDir, enc+".json"), filepath.Join(tournamentsDir, enc+".meta.json")
}

// SaveTournament writes the tournament and its metadata sidecar.
func (ts *TournamentStore) SaveTournament(t *TournamentRecord) error {
	mutex := ts.lock(t.ID)
	mutex.Lock()
	defer mutex.Unlock()

	filename, metaFilename := tournamentFiles(t.ID)
	if err := ts.storage.SaveDataFile(filename, t); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	meta := t.Metadata()
	if err := ts.storage.SaveDataFile(metaFilename, &meta); err != nil {
		// The main file is authoritative; listing falls back to it.
		log.Printf("Warning: Failed to save metadata sidecar for tournament %s: %v", t.ID, err)
	}

	if b, err := json.Marshal(t); err == nil {
		ts.cache.Store(t.ID, b)
	}

	ts.dirtyMu.Lock()
	delete(ts.dirty, t.ID)
	ts.dirtyMu.Unlock()
	return nil
}

// SaveTournamentInMemory updates the cache and marks the tournament dirty.
// If forceSync is true, it writes to disk immediately.
func (ts *TournamentStore) SaveTournamentInMemory(t *TournamentRecord, forceSync bool) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	ts.cache.Store(t.ID, b)

	if forceSync {
		return ts.SaveTournament(t)
	}

	ts.dirtyMu.Lock()
	ts.dirty[t.ID] = true
	ts.dirtyMu.Unlock()
	return nil
}

// IsDirty reports whether the tournament has unflushed changes.
func (ts *TournamentStore) IsDirty(id string) bool {
	ts.dirtyMu.Lock()
	defer ts.dirtyMu.Unlock()
	return ts.dirty[id]
}

// Flush persists a tournament to disk if it is dirty.
func (ts *TournamentStore) Flush(id string) error {
	if !ts.IsDirty(id) {
		return nil
	}
	val, ok := ts.cache.Load(id)
	if !ok {
		ts.dirtyMu.Lock()
		delete(ts.dirty, id)
		ts.dirtyMu.Unlock()
		return fmt.Errorf("tournament %s marked dirty but not found in cache", id)
	}
	var t TournamentRecord
	if err := json.Unmarshal(val.([]byte), &t); err != nil {
		return fmt.Errorf("failed to unmarshal tournament from cache for flush: %w", err)
	}
	return ts.SaveTournament(&t)
}

// FlushAll persists all dirty tournaments to disk.
func (ts *TournamentStore) FlushAll() error {
	for _, id := range ts.dirtyIDs() {
		if err := ts.Flush(id); err != nil {
			return fmt.Errorf("failed to flush tournament %s: %w", id, err)
		}
	}
	return nil
}

func (ts *TournamentStore) dirtyIDs() []string {
	ts.dirtyMu.Lock()
	defer ts.dirtyMu.Unlock()
	ids := make([]string, 0, len(ts.dirty))
	for id := range ts.dirty {
		ids = append(ids, id)
	}
	return ids
}

// LoadTournament loads a tournament by id. It returns os.ErrNotExist when
// there is no such file. Tombstones are returned as they are.
func (ts *TournamentStore) LoadTournament(id string) (*TournamentRecord, error) {
	if val, ok := ts.cache.Load(id); ok {
		var t TournamentRecord
		if err := json.Unmarshal(val.([]byte), &t); err == nil {
			if ts.Debug {
				log.Printf("[CACHE] Hit for tournament %s", id)
			}
			t.normalize()
			return &t, nil
		}
		ts.cache.Delete(id)
	}
	if ts.Debug {
		log.Printf("[CACHE] Miss for tournament %s", id)
	}

	mutex := ts.lock(id)
	mutex.RLock()
	defer mutex.RUnlock()

	filename, _ := tournamentFiles(id)
	var t TournamentRecord
	if err := ts.storage.ReadDataFile(filename, &t); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	if t.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("tournament %s has schema version %d, newer than %d", id, t.SchemaVersion, CurrentSchemaVersion)
	}
	t.normalize()

	if b, err := json.Marshal(&t); err == nil {
		ts.cache.Store(id, b)
	}
	return &t, nil
}

// loadLive loads a tournament and treats tombstones as missing.
func (ts *TournamentStore) loadLive(id string) (*TournamentRecord, error) {
	t, err := ts.LoadTournament(id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: tournament %s", ErrNotFound, id)
		}
		return nil, err
	}
	if t.IsDeleted() {
		return nil, fmt.Errorf("%w: tournament %s", ErrNotFound, id)
	}
	return t, nil
}

// LoadTournamentAsJSON returns the stored record as JSON.
func (ts *TournamentStore) LoadTournamentAsJSON(id string) ([]byte, error) {
	t, err := ts.LoadTournament(id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(t)
}

// DeleteTournament replaces the tournament with a tombstone. Teams and
// matches go with it.
func (ts *TournamentStore) DeleteTournament(id string) error {
	t, err := ts.LoadTournament(id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	mutex := ts.lock(id)
	mutex.Lock()
	defer mutex.Unlock()

	tombstone := &TournamentRecord{
		Tournament:    scoring.Tournament{ID: id},
		SchemaVersion: CurrentSchemaVersion,
		Status:        StatusDeleted,
		OwnerID:       t.OwnerID,
		DeletedAt:     time.Now().UnixNano(),
		LastRaftIndex: t.LastRaftIndex,
	}

	filename, metaFilename := tournamentFiles(id)
	if err := ts.storage.SaveDataFile(filename, tombstone); err != nil {
		return fmt.Errorf("storage.SaveDataFile (tombstone): %w", err)
	}
	meta := tombstone.Metadata()
	if err := ts.storage.SaveDataFile(metaFilename, &meta); err != nil {
		log.Printf("Warning: Failed to save metadata tombstone for tournament %s: %v", id, err)
	}
	if b, err := json.Marshal(tombstone); err == nil {
		ts.cache.Store(id, b)
	}
	ts.dirtyMu.Lock()
	delete(ts.dirty, id)
	ts.dirtyMu.Unlock()
	return nil
}

// PurgeTournament permanently deletes the tournament files.
func (ts *TournamentStore) PurgeTournament(id string) error {
	mutex := ts.lock(id)
	mutex.Lock()
	defer mutex.Unlock()

	ts.cache.Delete(id)

	filename, metaFilename := tournamentFiles(id)
	if err := os.Remove(filepath.Join(ts.DataDir, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not purge tournament file: %w", err)
	}
	if err := os.Remove(filepath.Join(ts.DataDir, metaFilename)); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not purge meta file for tournament %s: %v", id, err)
	}
	return nil
}

// scanDir returns the ids that have a main file and the ids that have a
// metadata sidecar.
func (ts *TournamentStore) scanDir() (main, meta map[string]bool, err error) {
	files, err := os.ReadDir(filepath.Join(ts.DataDir, tournamentsDir))
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("could not read tournaments directory: %w", err)
	}
	main = make(map[string]bool)
	meta = make(map[string]bool)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		switch {
		case strings.HasSuffix(name, ".meta.json"):
			if id, err := url.PathUnescape(strings.TrimSuffix(name, ".meta.json")); err == nil {
				meta[id] = true
			}
		case strings.HasSuffix(name, ".json"):
			if id, err := url.PathUnescape(strings.TrimSuffix(name, ".json")); err == nil {
				main[id] = true
			}
		}
	}
	return main, meta, nil
}

// ListAllTournamentIDs returns the ids on disk plus the unflushed ones.
func (ts *TournamentStore) ListAllTournamentIDs() ([]string, error) {
	main, _, err := ts.scanDir()
	if err != nil {
		return nil, err
	}
	for _, id := range ts.dirtyIDs() {
		main[id] = true
	}
	ids := make([]string, 0, len(main))
	for id := range main {
		ids = append(ids, id)
	}
	return ids, nil
}

// ListAllTournamentMetadata returns metadata for all tournaments. Dirty
// tournaments are read from the cache, the rest from their sidecar, and
// the main file is the fallback.
func (ts *TournamentStore) ListAllTournamentMetadata() iter.Seq2[TournamentMetadata, error] {
	return func(yield func(TournamentMetadata, error) bool) {
		main, meta, err := ts.scanDir()
		if err != nil {
			yield(TournamentMetadata{}, err)
			return
		}
		seen := make(map[string]bool)

		for _, id := range ts.dirtyIDs() {
			seen[id] = true
			t, err := ts.LoadTournament(id)
			if err != nil {
				log.Printf("Error: Failed to load dirty tournament %s: %v", id, err)
				continue
			}
			if !yield(t.Metadata(), nil) {
				return
			}
		}

		for id := range meta {
			if seen[id] {
				continue
			}
			_, metaFilename := tournamentFiles(id)
			var m TournamentMetadata
			if err := ts.storage.ReadDataFile(metaFilename, &m); err != nil {
				log.Printf("Registry Warning: failed to load metadata for %s: %v. Falling back to main file.", id, err)
				main[id] = true
				continue
			}
			seen[id] = true
			if !yield(m, nil) {
				return
			}
		}

		for id := range main {
			if seen[id] {
				continue
			}
			seen[id] = true
			t, err := ts.LoadTournament(id)
			if err != nil {
				log.Printf("Registry Warning: failed to load tournament %s from disk: %v", id, err)
				continue
			}
			if !yield(t.Metadata(), nil) {
				return
			}
		}
	}
}

// ListAllTournaments returns an iterator over every stored tournament,
// tombstones included.
func (ts *TournamentStore) ListAllTournaments() iter.Seq2[*TournamentRecord, error] {
	return func(yield func(*TournamentRecord, error) bool) {
		ids, err := ts.ListAllTournamentIDs()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, id := range ids {
			t, err := ts.LoadTournament(id)
			if err != nil {
				log.Printf("Warning: could not load tournament '%s': %v", id, err)
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}
