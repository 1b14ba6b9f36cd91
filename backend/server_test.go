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
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

const testAdmin = "admin@example.com"

type testServer struct {
	handler http.Handler
	store   *TournamentStore
	reg     *Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s, store := newTestStore(t)
	reg := NewRegistry(store)
	_, handler := NewServerHandler(Options{
		DataDir:         store.DataDir,
		Storage:         s,
		TournamentStore: store,
		Registry:        reg,
		UseMockAuth:     true,
		BootstrapAdmin:  testAdmin,
	})
	return &testServer{handler: handler, store: store, reg: reg}
}

// seed stores the standard test tournament, owned by testOwner.
func (ts *testServer) seed(t *testing.T) {
	t.Helper()
	tour := newTestTournament(testTournamentID)
	if err := ts.store.SaveTournament(tour); err != nil {
		t.Fatal(err)
	}
	ts.reg.UpdateTournament(tour)
}

func (ts *testServer) do(user, method, url, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	if user != "" {
		req.AddCookie(&http.Cookie{Name: "mock_auth_user", Value: user})
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func actionBody(t *testing.T, actions ...json.RawMessage) string {
	t.Helper()
	b, err := json.Marshal(ActionRequest{Actions: actions})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func tournamentURL(path string) string {
	return "/api/tournaments/" + testTournamentID + path
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&scoring.SelectionError{Missing: scoring.SelectBowler}, http.StatusPreconditionRequired},
		{scoring.ErrMatchCompleted, http.StatusConflict},
		{ErrConflict, http.StatusConflict},
		{fmt.Errorf("action 2: %w", scoring.ErrUnknownPlayer), http.StatusBadRequest},
		{ErrInvalidAction, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{ErrHubBusy, http.StatusTooManyRequests},
		{ErrNotLeader, http.StatusServiceUnavailable},
		{&statusError{code: http.StatusTeapot, msg: "tea"}, http.StatusTeapot},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := httpStatus(tc.err); got != tc.want {
			t.Errorf("httpStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHTTPHandlers(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	t.Run("Health", func(t *testing.T) {
		w := ts.do("", "GET", "/health", "")
		if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
			t.Errorf("health = %d %q", w.Code, w.Body.String())
		}
		if w.Header().Get("X-Frame-Options") != "DENY" {
			t.Error("security headers missing")
		}
	})

	t.Run("Me", func(t *testing.T) {
		w := ts.do(testOwner, "GET", "/api/me", "")
		if w.Code != http.StatusOK {
			t.Fatalf("me = %d", w.Code)
		}
		var me struct {
			ID      string         `json:"id"`
			Allowed bool           `json:"allowed"`
			Admin   bool           `json:"admin"`
			Quotas  map[string]int `json:"quotas"`
		}
		json.NewDecoder(w.Body).Decode(&me)
		if me.ID != testOwner || !me.Allowed || me.Admin || me.Quotas["tournamentsUsed"] != 1 {
			t.Errorf("me = %+v", me)
		}
		if w := ts.do("", "GET", "/api/me", ""); w.Code != http.StatusForbidden {
			t.Errorf("anonymous me = %d", w.Code)
		}
	})

	t.Run("CreateTournament", func(t *testing.T) {
		w := ts.do(testOwner, "POST", "/api/tournaments", `{"name":"Winter Cup","strictBowlerRotation":true}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("create = %d %s", w.Code, w.Body.String())
		}
		var meta TournamentMetadata
		json.NewDecoder(w.Body).Decode(&meta)
		if !isValidUUID(meta.ID) || meta.Name != "Winter Cup" || meta.OwnerID != testOwner {
			t.Errorf("metadata = %+v", meta)
		}
		loaded, err := ts.store.LoadTournament(meta.ID)
		if err != nil || !loaded.Rules.StrictBowlerRotation {
			t.Errorf("stored = %+v, %v", loaded, err)
		}

		if w := ts.do(testOwner, "POST", "/api/tournaments", `{"id":"`+testTournamentID+`","name":"Again"}`); w.Code != http.StatusConflict {
			t.Errorf("duplicate id = %d", w.Code)
		}
		if w := ts.do(testOwner, "POST", "/api/tournaments", `{"name":""}`); w.Code != http.StatusBadRequest {
			t.Errorf("empty name = %d", w.Code)
		}
		if w := ts.do("", "POST", "/api/tournaments", `{"name":"Anon Cup"}`); w.Code != http.StatusForbidden {
			t.Errorf("anonymous create = %d", w.Code)
		}
	})

	t.Run("ListTournaments", func(t *testing.T) {
		w := ts.do(testOwner, "GET", "/api/tournaments?sortBy=name&limit=1", "")
		var list tournamentList
		json.NewDecoder(w.Body).Decode(&list)
		if list.Total != 2 || len(list.Tournaments) != 1 || list.Tournaments[0].Name != "Summer Cup" {
			t.Errorf("list = %+v", list)
		}
		w = ts.do("", "GET", "/api/tournaments", "")
		list = tournamentList{}
		json.NewDecoder(w.Body).Decode(&list)
		if list.Total != 0 || list.Tournaments == nil {
			t.Errorf("anonymous list = %+v", list)
		}
	})

	t.Run("GetTournamentETag", func(t *testing.T) {
		w := ts.do(testOwner, "GET", tournamentURL(""), "")
		if w.Code != http.StatusOK {
			t.Fatalf("get = %d", w.Code)
		}
		etag := w.Header().Get("ETag")
		if etag == "" {
			t.Fatal("no ETag")
		}
		if w := ts.do(testOwner, "GET", tournamentURL(""), "", "If-None-Match", etag); w.Code != http.StatusNotModified {
			t.Errorf("conditional get = %d", w.Code)
		}
	})

	t.Run("Actions", func(t *testing.T) {
		body := actionBody(t, append(openingActions(t, testMatchID, 2), ballAction(t, testMatchID, scoring.Ball{Runs: 4}))...)
		w := ts.do(testOwner, "POST", tournamentURL("/actions"), body)
		if w.Code != http.StatusOK {
			t.Fatalf("actions = %d %s", w.Code, w.Body.String())
		}
		var resp ActionResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Outcomes) != 4 || resp.Outcomes[3].Event == nil {
			t.Errorf("outcomes = %+v", resp.Outcomes)
		}
		sb, ok := resp.Scoreboards[testMatchID]
		if !ok || sb.Summary.Runs != 4 || sb.Phase != scoring.PhaseReady {
			t.Errorf("scoreboard = %+v", sb)
		}
		if !ts.store.IsDirty(testTournamentID) {
			t.Error("actions should stay in memory until the next flush")
		}
	})

	t.Run("ActionErrors", func(t *testing.T) {
		otherMatch := "33333333-3333-4333-8333-333333333333"
		tests := []struct {
			name string
			user string
			body string
			want int
		}{
			{"SelectionRequired", testOwner, actionBody(t, startMatchAction(t, otherMatch, 2), ballAction(t, otherMatch, scoring.Ball{Runs: 1})), http.StatusPreconditionRequired},
			{"InvalidAction", testOwner, actionBody(t, ballAction(t, testMatchID, scoring.Ball{Runs: 9})), http.StatusBadRequest},
			{"UnknownPlayer", testOwner, actionBody(t, selectPlayerAction(t, ActionSelectBowler, testMatchID, "nobody")), http.StatusBadRequest},
			{"Empty", testOwner, `{"actions":[]}`, http.StatusBadRequest},
			{"Mismatch", testOwner, `{"tournamentId":"` + testMatchID + `","actions":[]}`, http.StatusBadRequest},
			{"Malformed", testOwner, `{"actions":`, http.StatusBadRequest},
			{"Anonymous", "", actionBody(t, action(t, ActionSwapStrike, map[string]string{"matchId": testMatchID})), http.StatusForbidden},
			{"Stranger", "stranger@example.com", actionBody(t, action(t, ActionSwapStrike, map[string]string{"matchId": testMatchID})), http.StatusForbidden},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				w := ts.do(tc.user, "POST", tournamentURL("/actions"), tc.body)
				if w.Code != tc.want {
					t.Errorf("got %d, want %d: %s", w.Code, tc.want, w.Body.String())
				}
			})
		}
		loaded, _ := ts.store.LoadTournament(testTournamentID)
		if loaded.Match(otherMatch) >= 0 {
			t.Error("failed batch left a match behind")
		}
	})

	t.Run("Scoreboard", func(t *testing.T) {
		w := ts.do(testOwner, "GET", tournamentURL("/matches/"+testMatchID+"/scoreboard"), "")
		var sb scoring.Scoreboard
		if err := json.NewDecoder(w.Body).Decode(&sb); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if sb.Summary.Runs != 4 || sb.BattingTeam != "Lions" || sb.Striker == nil || sb.Striker.Name != "Asha" {
			t.Errorf("scoreboard = %+v", sb)
		}
		if w := ts.do(testOwner, "GET", tournamentURL("/matches/"+testTournamentID+"/scoreboard"), ""); w.Code != http.StatusNotFound {
			t.Errorf("unknown match = %d", w.Code)
		}
	})

	t.Run("Scorecard", func(t *testing.T) {
		w := ts.do(testOwner, "GET", tournamentURL("/matches/"+testMatchID+"/scorecard?format=text"), "")
		if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "Lions vs Tigers (2 overs)\n") {
			t.Errorf("text scorecard = %d %q", w.Code, w.Body.String())
		}
		w = ts.do(testOwner, "GET", tournamentURL("/matches/"+testMatchID+"/scorecard"), "")
		var sc scoring.Scorecard
		json.NewDecoder(w.Body).Decode(&sc)
		if sc.Title != "Lions vs Tigers" || len(sc.Innings) != 1 {
			t.Errorf("scorecard = %+v", sc)
		}
		w = ts.do(testOwner, "GET", tournamentURL("/matches/33333333-3333-4333-8333-333333333333/scorecard"), "")
		if w.Code != http.StatusNotFound {
			t.Errorf("unknown match scorecard = %d", w.Code)
		}
	})

	t.Run("ReportAndPlayers", func(t *testing.T) {
		w := ts.do(testOwner, "GET", tournamentURL("/report"), "")
		if w.Code != http.StatusOK {
			t.Errorf("report = %d", w.Code)
		}
		w = ts.do(testOwner, "GET", tournamentURL("/players?q=farah"), "")
		var hits []PlayerHit
		json.NewDecoder(w.Body).Decode(&hits)
		if len(hits) != 1 || hits[0].PlayerID != "t3" {
			t.Errorf("players = %+v", hits)
		}
	})

	t.Run("ExportImport", func(t *testing.T) {
		w := ts.do(testOwner, "GET", tournamentURL("/export"), "")
		if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Disposition"), testTournamentID) {
			t.Fatalf("export = %d %v", w.Code, w.Header())
		}
		w = ts.do(testOwner, "POST", "/api/tournaments/import", w.Body.String())
		if w.Code != http.StatusCreated {
			t.Fatalf("import = %d %s", w.Code, w.Body.String())
		}
		var meta TournamentMetadata
		json.NewDecoder(w.Body).Decode(&meta)
		if meta.ID == testTournamentID || meta.Name != "Summer Cup" || meta.MatchCount != 1 {
			t.Errorf("imported = %+v", meta)
		}
		if w := ts.do(testOwner, "POST", "/api/tournaments/import", `{"name":"Broken"}`); w.Code != http.StatusBadRequest {
			t.Errorf("bad import = %d", w.Code)
		}
	})

	t.Run("SaveMatch", func(t *testing.T) {
		loaded, _ := ts.store.LoadTournament(testTournamentID)
		m := loaded.Matches[0]
		m.TotalOvers = 3
		body, _ := json.Marshal(m)
		if w := ts.do(testOwner, "PUT", tournamentURL("/matches/"+testMatchID), string(body)); w.Code != http.StatusOK {
			t.Fatalf("save match = %d %s", w.Code, w.Body.String())
		}
		loaded, _ = ts.store.LoadTournament(testTournamentID)
		if loaded.Matches[0].TotalOvers != 3 {
			t.Errorf("TotalOvers = %d", loaded.Matches[0].TotalOvers)
		}
		otherMatch := "33333333-3333-4333-8333-333333333333"
		if w := ts.do(testOwner, "PUT", tournamentURL("/matches/"+otherMatch), string(body)); w.Code != http.StatusBadRequest {
			t.Errorf("id mismatch = %d", w.Code)
		}
	})

	t.Run("Share", func(t *testing.T) {
		w := ts.do(testOwner, "GET", tournamentURL("/matches/"+testMatchID+"/share"), "")
		var share shareResponse
		json.NewDecoder(w.Body).Decode(&share)
		if share.Token == "" || share.URL != "http://example.com/#share="+share.Token {
			t.Fatalf("share = %+v", share)
		}

		body, _ := json.Marshal(map[string]string{"token": share.URL})
		w = ts.do("", "POST", "/api/share/decode", string(body))
		if w.Code != http.StatusOK {
			t.Fatalf("decode = %d %s", w.Code, w.Body.String())
		}
		var got sharedMatch
		json.NewDecoder(w.Body).Decode(&got)
		if got.Match.ID != testMatchID || got.Team1.Name != "Lions" || got.Scorecard.Title != "Lions vs Tigers" {
			t.Errorf("shared match = %+v", got)
		}

		w = ts.do("", "POST", "/api/share/decode", `{"token":"garbage"}`)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "invalid share link") {
			t.Errorf("bad token = %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("Permissions", func(t *testing.T) {
		reader := "reader@example.com"
		if w := ts.do(reader, "GET", tournamentURL(""), ""); w.Code != http.StatusForbidden {
			t.Errorf("reader before share = %d", w.Code)
		}
		if w := ts.do(reader, "PUT", tournamentURL("/permissions"), `{"users":{}}`); w.Code != http.StatusForbidden {
			t.Errorf("non-admin permissions = %d", w.Code)
		}

		w := ts.do(testOwner, "PUT", tournamentURL("/permissions"), `{"public":"none","users":{"Reader@example.com":"read"}}`)
		if w.Code != http.StatusOK {
			t.Fatalf("permissions = %d %s", w.Code, w.Body.String())
		}
		var meta TournamentMetadata
		json.NewDecoder(w.Body).Decode(&meta)
		if meta.Permissions.Users[reader] != PermissionRead {
			t.Errorf("permissions = %+v", meta.Permissions)
		}

		if w := ts.do(reader, "GET", tournamentURL(""), ""); w.Code != http.StatusOK {
			t.Errorf("reader after share = %d", w.Code)
		}
		if w := ts.do(reader, "POST", tournamentURL("/actions"), actionBody(t, action(t, ActionSwapStrike, map[string]string{"matchId": testMatchID}))); w.Code != http.StatusForbidden {
			t.Errorf("reader action = %d", w.Code)
		}
		if w := ts.do("", "GET", tournamentURL(""), ""); w.Code != http.StatusForbidden {
			t.Errorf("anonymous get = %d", w.Code)
		}
		if w := ts.do(testOwner, "PUT", tournamentURL("/permissions"), `{"public":"write"}`); w.Code != http.StatusBadRequest {
			t.Errorf("public write = %d", w.Code)
		}
	})

	t.Run("BadIDs", func(t *testing.T) {
		if w := ts.do(testOwner, "GET", "/api/tournaments/not-a-uuid", ""); w.Code != http.StatusBadRequest {
			t.Errorf("bad id = %d", w.Code)
		}
		if w := ts.do(testOwner, "GET", "/api/tournaments/"+testMatchID, ""); w.Code != http.StatusNotFound {
			t.Errorf("unknown id = %d", w.Code)
		}
	})

	t.Run("AdminPolicy", func(t *testing.T) {
		if w := ts.do(testOwner, "GET", "/api/admin/policy", ""); w.Code != http.StatusForbidden {
			t.Errorf("non-admin get policy = %d", w.Code)
		}
		policy := `{"defaultPolicy":"deny","defaultDenyMessage":"Closed","users":{"Owner@example.com":{"access":"allow"}}}`
		if w := ts.do(testAdmin, "PUT", "/api/admin/policy", policy); w.Code != http.StatusOK {
			t.Fatalf("put policy = %d %s", w.Code, w.Body.String())
		}
		if w := ts.do(testAdmin, "PUT", "/api/admin/policy", `{"defaultPolicy":"maybe"}`); w.Code != http.StatusBadRequest {
			t.Errorf("invalid policy = %d", w.Code)
		}

		w := ts.do(testAdmin, "GET", "/api/admin/policy", "")
		var got UserAccessPolicy
		json.NewDecoder(w.Body).Decode(&got)
		if got.DefaultPolicy != "deny" || got.Users[testOwner].Access != "allow" {
			t.Errorf("policy = %+v", got)
		}

		if w := ts.do("stranger@example.com", "POST", "/api/tournaments", `{"name":"Nope"}`); w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), "Closed") {
			t.Errorf("denied user create = %d %q", w.Code, w.Body.String())
		}
		if w := ts.do(testOwner, "GET", tournamentURL(""), ""); w.Code != http.StatusOK {
			t.Errorf("allowed owner get = %d", w.Code)
		}

		w = ts.do(testAdmin, "GET", "/api/admin/stats", "")
		var stats NodeMetric
		json.NewDecoder(w.Body).Decode(&stats)
		if w.Code != http.StatusOK || stats.Tournaments < 2 {
			t.Errorf("stats = %d %+v", w.Code, stats)
		}
	})

	t.Run("MockSSO", func(t *testing.T) {
		w := ts.do(testOwner, "POST", "/.sso/", "")
		if !strings.Contains(w.Body.String(), testOwner) {
			t.Errorf("sso status = %q", w.Body.String())
		}
		w = ts.do(testOwner, "POST", "/.sso/logout", "")
		if c := w.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
			t.Errorf("logout cookies = %v", c)
		}
	})

	t.Run("ClusterDisabled", func(t *testing.T) {
		if w := ts.do(testAdmin, "GET", "/api/cluster/status", ""); w.Code != http.StatusNotImplemented {
			t.Errorf("cluster = %d", w.Code)
		}
	})

	t.Run("DeleteTournament", func(t *testing.T) {
		if w := ts.do(testOwner, "DELETE", tournamentURL(""), ""); w.Code != http.StatusOK {
			t.Fatalf("delete = %d %s", w.Code, w.Body.String())
		}
		if w := ts.do(testOwner, "GET", tournamentURL(""), ""); w.Code != http.StatusNotFound {
			t.Errorf("get after delete = %d", w.Code)
		}
		loaded, err := ts.store.LoadTournament(testTournamentID)
		if err != nil || !loaded.IsDeleted() {
			t.Errorf("tombstone = %+v, %v", loaded, err)
		}
	})
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query         string
		limit, offset int
	}{
		{"", 50, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=500", 100, 0},
		{"limit=0&offset=-3", 50, 0},
		{"limit=abc", 50, 0},
	}
	for _, tc := range tests {
		r := httptest.NewRequest("GET", "/api/tournaments?"+tc.query, nil)
		limit, offset, _, _, _ := parsePagination(r)
		if limit != tc.limit || offset != tc.offset {
			t.Errorf("parsePagination(%q) = %d, %d; want %d, %d", tc.query, limit, offset, tc.limit, tc.offset)
		}
	}
}
