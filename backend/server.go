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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
	"github.com/google/uuid"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

func generateETag(data []byte) string {
	return fmt.Sprintf("\"%x\"", sha256.Sum256(data))
}

func hubBusyResponse(w http.ResponseWriter, retryAfter string) {
	w.Header().Set("Retry-After", retryAfter)
	http.Error(w, "Too Many Requests: Server is busy", http.StatusTooManyRequests)
}

func parsePagination(r *http.Request) (int, int, string, string, string) {
	limit := 50
	offset := 0
	sortBy := r.URL.Query().Get("sortBy")
	if sortBy == "" {
		sortBy = r.URL.Query().Get("sort")
	}
	order := r.URL.Query().Get("order")
	query := r.URL.Query().Get("q")

	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil {
			offset = val
		}
	}

	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset, sortBy, order, query
}

// statusError carries an HTTP status, e.g. from a response relayed by the
// leader.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return e.msg
}

// httpStatus maps an error to the status code reported to clients.
func httpStatus(err error) int {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.code
	case errors.Is(err, scoring.ErrSelectionRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, scoring.ErrInvalidState), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrFormat), errors.Is(err, ErrInvalidAction),
		errors.Is(err, scoring.ErrInvalidDelivery), errors.Is(err, scoring.ErrInvalidMatch),
		errors.Is(err, scoring.ErrInvalidTeam), errors.Is(err, scoring.ErrUnknownPlayer):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrHubBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotLeader):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError reports err with the matching status code. Internal errors
// are logged and not shown to the client.
func writeError(w http.ResponseWriter, err error) {
	var se *statusError
	if errors.As(err, &se) {
		http.Error(w, se.msg, se.code)
		return
	}
	code := httpStatus(err)
	switch code {
	case http.StatusTooManyRequests:
		hubBusyResponse(w, retryAfterAction)
	case http.StatusInternalServerError:
		log.Printf("Internal error: %v", err)
		http.Error(w, "Internal Server Error", code)
	default:
		http.Error(w, http.StatusText(code)+": "+err.Error(), code)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// Options represent server options.
type Options struct {
	Addr             string
	ClusterAdvertise string
	ClusterAddr      string
	DataDir          string
	UseMockAuth      bool
	Debug            bool
	TournamentStore  *TournamentStore
	Storage          *storage.Storage
	MasterKey        crypto.MasterKey
	Registry         *Registry
	Metrics          *Metrics
	Listener         net.Listener

	// Raft Options
	RaftEnabled           bool
	RaftBind              string
	RaftAdvertise         string
	RaftSecret            string
	RaftBootstrap         bool
	RaftManager           *RaftManager // Allow injecting pre-configured RaftManager
	UseProductionTimeouts bool         // Set to true to use longer timeouts (e.g. for production)

	// Auth Options
	AuthCookieName string
	AuthJWKSURL    string
	AuthIssuer     string

	// Access Control Options
	BootstrapAdmin string

	// PublicURL is the page share links point to. Defaults to the
	// request's own origin.
	PublicURL string
}

const (
	retryAfterLoad   = "2"
	retryAfterAction = "5"
)

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server
	raftMgr    *RaftManager
	scheduler  *Scheduler
}

// Shutdown gracefully shuts down the server and Raft node.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []string

	if s.raftMgr != nil {
		if err := s.raftMgr.Shutdown(); err != nil {
			errs = append(errs, fmt.Sprintf("raft: %v", err))
		}
		if s.raftMgr.FSM != nil {
			if err := s.raftMgr.FSM.FlushAll(); err != nil {
				errs = append(errs, fmt.Sprintf("fsm flush: %v", err))
			}
		}
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("http: %v", err))
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Sprintf("scheduler: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %s", strings.Join(errs, ", "))
	}
	return nil
}

// StartServer starts the web server and registers the API handlers.
func StartServer(opts Options) (*Server, error) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, opts.MasterKey)
	}
	if opts.TournamentStore == nil {
		opts.TournamentStore = NewTournamentStore(opts.DataDir, opts.Storage)
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry(opts.TournamentStore)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}

	raftMgr, handler := NewServerHandler(opts)

	if raftMgr != nil {
		// Wait for Raft to replay log and catch up to ensure data consistency
		// before starting the public HTTP server.
		if err := raftMgr.WaitForSync(30 * time.Second); err != nil {
			log.Printf("Warning: Raft sync timed out: %v", err)
		}
	}

	scheduler, err := NewScheduler(opts.TournamentStore, opts.Registry, opts.Metrics)
	if err != nil {
		return nil, err
	}
	if err := scheduler.Start(); err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if opts.Listener != nil {
			log.Printf("Starting HTTP server on provided listener %s...", opts.Listener.Addr())
			err = httpServer.Serve(opts.Listener)
		} else {
			log.Printf("Server starting on %s...", opts.Addr)
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return &Server{
			httpServer: httpServer,
			raftMgr:    raftMgr,
			scheduler:  scheduler,
		},
		nil
}

type createTournamentRequest struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	StrictBowlerRotation bool   `json:"strictBowlerRotation"`
}

type tournamentList struct {
	Tournaments []TournamentMetadata `json:"tournaments"`
	Total       int                  `json:"total"`
}

type tournamentReport struct {
	Performers scoring.Performers `json:"performers"`
	Standings  []scoring.Standing `json:"standings"`
}

type shareResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type sharedMatch struct {
	SharePayload
	Scorecard scoring.Scorecard `json:"scorecard"`
}

// NewServerHandler creates and configures the HTTP handler for the server.
func NewServerHandler(opts Options) (*RaftManager, http.Handler) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}

	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, nil)
	}

	store := opts.TournamentStore
	if store == nil {
		store = NewTournamentStore(opts.DataDir, opts.Storage)
	}

	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry(store)
	}
	var policy UserAccessPolicy
	if err := opts.Storage.ReadDataFile("sys_access_policy", &policy); err == nil {
		registry.UpdateAccessPolicy(&policy)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	accessControl := NewAccessControl(registry, opts.BootstrapAdmin)

	var raftMgr *RaftManager
	hm := NewHubManager(store, registry)

	authMiddleware := func(next http.Handler) http.Handler {
		return jwtAuthMiddleware(opts, next)
	}
	if opts.UseMockAuth {
		authMiddleware = func(next http.Handler) http.Handler {
			return mockAuthMiddleware(opts, next)
		}
	}

	if opts.RaftEnabled {
		if opts.RaftManager != nil {
			raftMgr = opts.RaftManager
		} else {
			raftDataDir := filepath.Join(opts.DataDir, "raft")
			if err := os.MkdirAll(raftDataDir, 0755); err != nil {
				log.Fatalf("Failed to create Raft data directory: %v", err)
			}
			raftStorage := storage.New(raftDataDir, opts.MasterKey)
			fsm := NewFSM(store, registry, hm, raftStorage)

			raftMgr = NewRaftManager(raftDataDir, opts.RaftBind, opts.RaftAdvertise, opts.ClusterAdvertise, opts.ClusterAddr, opts.RaftSecret, fsm)
			raftMgr.UseProductionTimeouts = opts.UseProductionTimeouts
			raftMgr.MasterKey = opts.MasterKey
			raftMgr.AuthMiddleware = authMiddleware
		}
		hm.SetRaftManager(raftMgr)
	}

	debugf := func(string, ...any) {}
	if opts.Debug {
		debugf = func(f string, a ...any) {
			log.Printf("[DEBUG BACKEND] "+f, a...)
		}
	}

	// requireUser returns the authenticated, allowed user or writes an
	// error.
	requireUser := func(w http.ResponseWriter, r *http.Request) (string, bool) {
		userId := getUserID(r)
		if userId == "" || !isValidEmail(userId) {
			http.Error(w, "Forbidden: Invalid User ID", http.StatusForbidden)
			return "", false
		}
		if allowed, msg := accessControl.IsAllowed(userId); !allowed {
			http.Error(w, "Forbidden: "+msg, http.StatusForbidden)
			return "", false
		}
		return userId, true
	}

	// authorize checks the caller's access level on a tournament. Anonymous
	// callers may read public tournaments.
	authorize := func(w http.ResponseWriter, r *http.Request, id string, need AccessLevel) (string, bool) {
		if !isValidUUID(id) {
			http.Error(w, "Bad Request: invalid tournament id", http.StatusBadRequest)
			return "", false
		}
		userId := getUserID(r)
		if need > AccessRead || userId != "" {
			var ok bool
			if userId, ok = requireUser(w, r); !ok {
				return "", false
			}
		}
		if !registry.Exists(id) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return "", false
		}
		if level := registry.GetAccessLevel(userId, id); level < need {
			debugf("User %s has %s access to %s, needs %s", maskEmail(userId), level, id, need)
			http.Error(w, "Forbidden: You do not have "+need.String()+" access to this tournament", http.StatusForbidden)
			return "", false
		}
		return userId, true
	}

	// load reads a tournament through its hub.
	load := func(w http.ResponseWriter, r *http.Request, id string) ([]byte, *TournamentRecord, bool) {
		data, err := hm.GetHub(id).Do(r.Context(), HubRequest{Type: ReqTypeHTTPLoad})
		if err != nil {
			if errors.Is(err, ErrHubBusy) {
				hubBusyResponse(w, retryAfterLoad)
				return nil, nil, false
			}
			writeError(w, err)
			return nil, nil, false
		}
		var t TournamentRecord
		if err := json.Unmarshal(data, &t); err != nil {
			writeError(w, err)
			return nil, nil, false
		}
		return data, &t, true
	}

	var repo Repository = hm

	matchWithTeams := func(w http.ResponseWriter, r *http.Request, id string) (scoring.Match, []scoring.Team, bool) {
		m, err := repo.GetMatch(r.Context(), id, r.PathValue("matchId"))
		if err == nil {
			var teams []scoring.Team
			if teams, err = repo.ListTeams(r.Context(), id); err == nil {
				return m, teams, true
			}
		}
		if errors.Is(err, ErrHubBusy) {
			hubBusyResponse(w, retryAfterLoad)
		} else {
			writeError(w, err)
		}
		return scoring.Match{}, nil, false
	}

	// create stores a new tournament. body is what a follower forwards to
	// the leader.
	create := func(w http.ResponseWriter, r *http.Request, t *TournamentRecord, body []byte) bool {
		if raftMgr != nil {
			data, err := json.Marshal(t)
			if err != nil {
				writeError(w, err)
				return false
			}
			raw := json.RawMessage(data)
			if _, err := raftMgr.Propose(RaftCommand{Type: CmdSaveTournament, ID: t.ID, TournamentData: &raw}); err != nil {
				if errors.Is(err, ErrNotLeader) {
					r.Body = io.NopCloser(bytes.NewReader(body))
					raftMgr.forwardRequestToLeader(w, r)
					return false
				}
				writeError(w, err)
				return false
			}
			return true
		}
		if err := store.SaveTournament(t); err != nil {
			writeError(w, err)
			return false
		}
		registry.UpdateTournament(t)
		return true
	}

	mux := http.NewServeMux()

	if raftMgr != nil {
		raftMgr.RegisterHandlers(mux)
	} else {
		mux.HandleFunc("/api/cluster/", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Raft is not enabled on this node", http.StatusNotImplemented)
		})
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok\n"))
	})

	// Admin API - Get/Update Policy
	mux.HandleFunc("GET /api/admin/policy", func(w http.ResponseWriter, r *http.Request) {
		if !accessControl.IsAdmin(getUserID(r)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		policy := registry.GetAccessPolicy()
		if policy == nil {
			policy = &UserAccessPolicy{
				DefaultPolicy: "allow",
				Admins:        []string{},
				Users:         make(map[string]UserOverride),
			}
		}
		writeJSON(w, policy)
	})

	mux.HandleFunc("PUT /api/admin/policy", func(w http.ResponseWriter, r *http.Request) {
		if !accessControl.IsAdmin(getUserID(r)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		var newPolicy UserAccessPolicy
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&newPolicy); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}

		// Normalize user emails to lowercase to ensure case-insensitive matching
		normalizedUsers := make(map[string]UserOverride)
		for email, override := range newPolicy.Users {
			normalizedUsers[normalizeEmail(email)] = override
		}
		newPolicy.Users = normalizedUsers

		if newPolicy.DefaultPolicy != "allow" && newPolicy.DefaultPolicy != "deny" {
			http.Error(w, "Invalid default policy", http.StatusBadRequest)
			return
		}

		if raftMgr != nil {
			cmd := RaftCommand{
				Type:       CmdUpdateAccessPolicy,
				PolicyData: &newPolicy,
			}
			if _, err := raftMgr.Propose(cmd); err != nil {
				if errors.Is(err, ErrNotLeader) {
					body, _ := json.Marshal(newPolicy)
					r.Body = io.NopCloser(bytes.NewReader(body))
					raftMgr.forwardRequestToLeader(w, r)
					return
				}
				log.Printf("Raft Propose Error: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		} else {
			if err := opts.Storage.SaveDataFile("sys_access_policy", &newPolicy); err != nil {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			registry.UpdateAccessPolicy(&newPolicy)
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /api/admin/stats", func(w http.ResponseWriter, r *http.Request) {
		if !accessControl.IsAdmin(getUserID(r)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		snap := metrics.Snapshot()
		snap.ActiveHubs = hm.ActiveHubs()
		snap.Tournaments = registry.CountTotal()
		if raftMgr != nil {
			snap.NodeID = raftMgr.NodeID
		}
		writeJSON(w, snap)
	})

	// User Status & Quota Endpoint
	mux.HandleFunc("GET /api/me", func(w http.ResponseWriter, r *http.Request) {
		userId := getUserID(r)
		if userId == "" || !isValidEmail(userId) {
			http.Error(w, "Unauthenticated", http.StatusForbidden)
			return
		}
		allowed, msg := accessControl.IsAllowed(userId)
		writeJSON(w, map[string]any{
			"id":      userId,
			"allowed": allowed,
			"admin":   accessControl.IsAdmin(userId),
			"message": msg,
			"quotas": map[string]int{
				"maxTournaments":  accessControl.MaxTournaments(userId),
				"tournamentsUsed": registry.CountOwnedTournaments(userId),
			},
		})
	})

	mux.HandleFunc("GET /api/tournaments", func(w http.ResponseWriter, r *http.Request) {
		userId := getUserID(r)
		if userId != "" {
			if _, ok := requireUser(w, r); !ok {
				return
			}
		}
		limit, offset, sortBy, order, query := parsePagination(r)
		all := registry.ListTournaments(userId, sortBy, order, query)
		resp := tournamentList{Tournaments: []TournamentMetadata{}, Total: len(all)}
		if offset < len(all) {
			resp.Tournaments = all[offset:min(offset+limit, len(all))]
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("POST /api/tournaments", func(w http.ResponseWriter, r *http.Request) {
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req createTournamentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&req); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}
		if err := validateName(req.Name, "tournament name"); err != nil {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		} else if !isValidUUID(req.ID) {
			http.Error(w, "Bad Request: invalid tournament id", http.StatusBadRequest)
			return
		}
		if registry.Exists(req.ID) || registry.IsDeleted(req.ID) {
			http.Error(w, "Conflict: tournament already exists", http.StatusConflict)
			return
		}
		if err := accessControl.CheckTournamentQuota(userId); err != nil {
			writeError(w, err)
			return
		}

		now := time.Now().UnixMilli()
		t := &TournamentRecord{
			Tournament: scoring.Tournament{
				ID:          req.ID,
				Name:        req.Name,
				CreatedAt:   now,
				LastUpdated: now,
			},
			OwnerID: userId,
			Rules:   scoring.Rules{StrictBowlerRotation: req.StrictBowlerRotation},
			Status:  StatusActive,
		}
		t.normalize()
		body, _ := json.Marshal(req)
		if !create(w, r, t, body) {
			return
		}
		log.Printf("Tournament %s created by %s", t.ID, maskEmail(userId))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, t.Metadata())
	})

	mux.HandleFunc("POST /api/tournaments/import", func(w http.ResponseWriter, r *http.Request) {
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "Bad Request: body too large", http.StatusBadRequest)
			return
		}
		data, err := ValidateTournamentData(body)
		if err != nil {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !isValidUUID(data.ID) || registry.Exists(data.ID) || registry.IsDeleted(data.ID) {
			data.ID = uuid.NewString()
		}
		if err := accessControl.CheckTournamentQuota(userId); err != nil {
			writeError(w, err)
			return
		}
		now := time.Now().UnixMilli()
		if data.CreatedAt == 0 {
			data.CreatedAt = now
		}
		data.LastUpdated = max(data.LastUpdated, now)
		t := &TournamentRecord{
			Tournament: data,
			OwnerID:    userId,
			Status:     StatusActive,
		}
		t.normalize()
		forward, _ := json.Marshal(data)
		if !create(w, r, t, forward) {
			return
		}
		log.Printf("Tournament %s imported by %s", t.ID, maskEmail(userId))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, t.Metadata())
	})

	mux.HandleFunc("GET /api/tournaments/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := authorize(w, r, id, AccessRead); !ok {
			return
		}
		data, _, ok := load(w, r, id)
		if !ok {
			return
		}
		etag := generateETag(data)
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("DELETE /api/tournaments/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		userId, ok := authorize(w, r, id, AccessAdmin)
		if !ok {
			return
		}
		if _, err := hm.GetHub(id).Do(r.Context(), HubRequest{Type: ReqTypeHTTPDelete, UserId: userId}); err != nil {
			writeError(w, err)
			return
		}
		log.Printf("Tournament %s deleted by %s", id, maskEmail(userId))
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /api/tournaments/{id}/actions", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		userId, ok := authorize(w, r, id, AccessWrite)
		if !ok {
			return
		}
		var req ActionRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}
		if req.TournamentID != "" && req.TournamentID != id {
			http.Error(w, "Bad Request: tournamentId mismatch", http.StatusBadRequest)
			return
		}
		req.TournamentID = id
		if len(req.Actions) == 0 {
			http.Error(w, "Bad Request: no actions", http.StatusBadRequest)
			return
		}
		if err := ValidateActions(req.Actions); err != nil {
			writeError(w, err)
			return
		}

		resp, err := hm.GetHub(id).Do(r.Context(), HubRequest{
			Type:    ReqTypeHTTPAction,
			UserId:  userId,
			Headers: r.Header,
			Actions: req,
		})
		if err != nil {
			debugf("Action batch on %s failed: %v", id, err)
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	})

	mux.HandleFunc("PUT /api/tournaments/{id}/permissions", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		userId, ok := authorize(w, r, id, AccessAdmin)
		if !ok {
			return
		}
		var p Permissions
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&p); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}
		payload, _ := json.Marshal(p)
		resp, err := hm.GetHub(id).Do(r.Context(), HubRequest{Type: ReqTypeHTTPShare, UserId: userId, Payload: payload})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	})

	mux.HandleFunc("GET /api/tournaments/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := authorize(w, r, id, AccessRead); !ok {
			return
		}
		_, t, ok := load(w, r, id)
		if !ok {
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "tournament-"+id+".json"))
		writeJSON(w, t.Export())
	})

	mux.HandleFunc("GET /api/tournaments/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := authorize(w, r, id, AccessRead); !ok {
			return
		}
		_, t, ok := load(w, r, id)
		if !ok {
			return
		}
		writeJSON(w, tournamentReport{
			Performers: scoring.TournamentPerformers(t.Tournament),
			Standings:  scoring.Standings(t.Tournament),
		})
	})

	mux.HandleFunc("GET /api/tournaments/{id}/players", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := authorize(w, r, id, AccessRead); !ok {
			return
		}
		_, t, ok := load(w, r, id)
		if !ok {
			return
		}
		writeJSON(w, SearchPlayers(t.Teams, r.URL.Query().Get("q")))
	})

	mux.HandleFunc("GET /api/tournaments/{id}/matches/{matchId}/scorecard", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := authorize(w, r, id, AccessRead); !ok {
			return
		}
		m, teams, ok := matchWithTeams(w, r, id)
		if !ok {
			return
		}
		sc := scoring.NewScorecard(m, teams)
		if r.URL.Query().Get("format") == "text" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			if err := sc.WriteText(w); err != nil {
				log.Printf("Error writing scorecard: %v", err)
			}
			return
		}
		writeJSON(w, sc)
	})

	mux.HandleFunc("GET /api/tournaments/{id}/matches/{matchId}/scoreboard", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := authorize(w, r, id, AccessRead); !ok {
			return
		}
		_, t, ok := load(w, r, id)
		if !ok {
			return
		}
		s, _, err := t.Session(r.PathValue("matchId"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, s.Scoreboard())
	})

	mux.HandleFunc("PUT /api/tournaments/{id}/matches/{matchId}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := authorize(w, r, id, AccessWrite); !ok {
			return
		}
		var m scoring.Match
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&m); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}
		if m.ID != r.PathValue("matchId") || !isValidUUID(m.ID) {
			http.Error(w, "Bad Request: match id mismatch", http.StatusBadRequest)
			return
		}
		if err := repo.SaveMatch(r.Context(), id, m); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /api/tournaments/{id}/matches/{matchId}/share", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := authorize(w, r, id, AccessRead); !ok {
			return
		}
		m, teams, ok := matchWithTeams(w, r, id)
		if !ok {
			return
		}
		team1, _ := scoring.FindTeam(teams, m.Team1ID)
		team2, _ := scoring.FindTeam(teams, m.Team2ID)
		token, err := EncodeShare(SharePayload{Match: m, Team1: team1, Team2: team2})
		if err != nil {
			writeError(w, err)
			return
		}
		base := opts.PublicURL
		if base == "" {
			scheme := "http"
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				scheme = "https"
			}
			base = scheme + "://" + r.Host
		}
		writeJSON(w, shareResponse{Token: token, URL: ShareURL(base, token)})
	})

	mux.HandleFunc("POST /api/share/decode", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}
		p, ok := DecodeShare(req.Token)
		if !ok {
			http.Error(w, "Bad Request: invalid share link", http.StatusBadRequest)
			return
		}
		writeJSON(w, sharedMatch{
			SharePayload: p,
			Scorecard:    scoring.NewScorecard(p.Match, []scoring.Team{p.Team1, p.Team2}),
		})
	})

	mux.HandleFunc("GET /api/ws", func(w http.ResponseWriter, r *http.Request) {
		userId := getUserID(r)
		if userId != "" {
			if allowed, msg := accessControl.IsAllowed(userId); !allowed {
				http.Error(w, "Forbidden: "+msg, http.StatusForbidden)
				return
			}
		}
		ServeWS(hm, w, r)
	})

	// Mock SSO endpoints for local development
	if opts.UseMockAuth {
		mux.HandleFunc("POST /.sso/{$}", ssoStatusHandler)
		mux.HandleFunc("POST /.sso/logout", ssoLogoutHandler)
	}

	handler := authMiddleware(mux)
	handler = loggingMiddleware(handler)
	handler = metricsMiddleware(metrics, handler)
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)

	if raftMgr != nil {
		raftMgr.AppHandler = handler
		if err := raftMgr.Start(opts.RaftBootstrap); err != nil {
			log.Fatalf("Failed to start Raft: %v", err)
		}
	}

	return raftMgr, handler
}

// cacheControlMiddleware keeps API responses out of shared caches.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/.sso/") {
			w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		}
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// mockAuthMiddleware simulates the auth proxy by reading the user from a
// cookie.
func mockAuthMiddleware(opts Options, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("mock_auth_user")
		if err == nil && cookie.Value != "" {
			ctx := context.WithValue(r.Context(), userIDKey, normalizeEmail(cookie.Value))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ssoStatusHandler returns the current user status.
func ssoStatusHandler(w http.ResponseWriter, r *http.Request) {
	userId := getUserID(r)
	if userId == "" {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("null\n"))
		return
	}
	writeJSON(w, map[string]any{
		"email": userId,
		"name":  "Test User",
	})
}

// ssoLogoutHandler logs the user out (clears cookie).
func ssoLogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:    "mock_auth_user",
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		MaxAge:  -1,
	})
	w.WriteHeader(http.StatusOK)
}

// loggingMiddleware logs the method and URL path of every incoming HTTP request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
