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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

func newTestHubManager(t *testing.T) (*HubManager, *TournamentStore) {
	t.Helper()
	_, store := newTestStore(t)
	tour := newTestTournament(testTournamentID)
	if err := store.SaveTournament(tour); err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry(store)
	return NewHubManager(store, reg), store
}

func hubAction(t *testing.T, h *Hub, user string, actions ...json.RawMessage) (*ActionResponse, error) {
	t.Helper()
	data, err := h.Do(context.Background(), HubRequest{
		Type:    ReqTypeHTTPAction,
		UserId:  user,
		Actions: ActionRequest{TournamentID: testTournamentID, Actions: actions},
	})
	if err != nil {
		return nil, err
	}
	var resp ActionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return &resp, nil
}

func TestHub(t *testing.T) {
	hm, store := newTestHubManager(t)
	h := hm.GetHub(testTournamentID)
	if hm.GetHub(testTournamentID) != h {
		t.Fatal("GetHub should return the running hub")
	}

	t.Run("Load", func(t *testing.T) {
		data, err := h.Do(context.Background(), HubRequest{Type: ReqTypeHTTPLoad})
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		var tr TournamentRecord
		if err := json.Unmarshal(data, &tr); err != nil || tr.Name != "Summer Cup" {
			t.Errorf("loaded = %+v, %v", tr, err)
		}
	})

	t.Run("Actions", func(t *testing.T) {
		resp, err := hubAction(t, h, testOwner, openingActions(t, testMatchID, 2)...)
		if err != nil {
			t.Fatalf("action failed: %v", err)
		}
		if sb := resp.Scoreboards[testMatchID]; sb.Phase != scoring.PhaseReady || sb.Bowler == nil || sb.Bowler.Name != "Farah" {
			t.Errorf("scoreboard = %+v", sb)
		}
	})

	t.Run("Forbidden", func(t *testing.T) {
		_, err := hubAction(t, h, "stranger@example.com", action(t, ActionSwapStrike, map[string]string{"matchId": testMatchID}))
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		_, err = hubAction(t, h, "", action(t, ActionSwapStrike, map[string]string{"matchId": testMatchID}))
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("anonymous: expected ErrForbidden, got %v", err)
		}
	})

	t.Run("ConcurrentBalls", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 6)
		for i := 0; i < 6; i++ {
			ball := ballAction(t, testMatchID, scoring.Ball{Runs: 2})
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Do(context.Background(), HubRequest{
					Type:    ReqTypeHTTPAction,
					UserId:  testOwner,
					Actions: ActionRequest{Actions: []json.RawMessage{ball}},
				})
				if err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("ball failed: %v", err)
		}

		loaded, err := store.LoadTournament(testTournamentID)
		if err != nil {
			t.Fatal(err)
		}
		sum := scoring.Summarize(loaded.Matches[0].Innings[0])
		if sum.Runs != 12 || sum.LegalBalls != 6 {
			t.Errorf("summary = %+v", sum)
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		ball := ballAction(t, testMatchID, scoring.Ball{Runs: 1})
		if _, err := hubAction(t, h, testOwner, selectPlayerAction(t, ActionSelectBowler, testMatchID, "t2"), ball); err != nil {
			t.Fatalf("first batch failed: %v", err)
		}
		resp, err := hubAction(t, h, testOwner, ball)
		if err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		if len(resp.Outcomes) != 1 || resp.Outcomes[0].Applied || len(resp.Scoreboards) != 0 {
			t.Errorf("replay outcome = %+v", resp)
		}
	})

	t.Run("UnknownTournament", func(t *testing.T) {
		other := hm.GetHub("44444444-4444-4444-8444-444444444444")
		if _, err := other.Do(context.Background(), HubRequest{Type: ReqTypeHTTPLoad}); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	if n := hm.ActiveHubs(); n != 2 {
		t.Errorf("ActiveHubs = %d, want 2", n)
	}
	hm.RemoveHub("44444444-4444-4444-8444-444444444444")
	if n := hm.ActiveHubs(); n != 1 {
		t.Errorf("ActiveHubs after RemoveHub = %d, want 1", n)
	}
}

func TestWebSocket(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	wsURL := func(id string) string {
		u, _ := url.Parse(server.URL)
		u.Scheme = "ws"
		u.Path = "/api/ws"
		u.RawQuery = url.Values{"tournamentId": {id}}.Encode()
		return u.String()
	}
	dial := func(t *testing.T, user string) *websocket.Conn {
		t.Helper()
		header := http.Header{}
		if user != "" {
			header.Add("Cookie", "mock_auth_user="+user)
		}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(testTournamentID), header)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	read := func(t *testing.T, conn *websocket.Conn) Message {
		t.Helper()
		var msg Message
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Failed to read message: %v", err)
		}
		return msg
	}

	t.Run("JoinAndFollow", func(t *testing.T) {
		conn := dial(t, testOwner)
		conn.WriteJSON(Message{Type: MsgTypeJoin, TournamentID: testTournamentID})
		if msg := read(t, conn); msg.Type != MsgTypeAck {
			t.Fatalf("expected ACK, got %+v", msg)
		}

		w := ts.do(testOwner, "POST", tournamentURL("/actions"), actionBody(t, append(openingActions(t, testMatchID, 2), ballAction(t, testMatchID, scoring.Ball{Runs: 6}))...))
		if w.Code != http.StatusOK {
			t.Fatalf("actions = %d %s", w.Code, w.Body.String())
		}
		msg := read(t, conn)
		if msg.Type != MsgTypeMatchUpdate || msg.MatchID != testMatchID || msg.Scoreboard == nil || msg.Match == nil {
			t.Fatalf("expected MATCH_UPDATE, got %+v", msg)
		}
		if msg.Scoreboard.Summary.Runs != 6 || msg.Scoreboard.Striker.Name != "Asha" {
			t.Errorf("scoreboard = %+v", msg.Scoreboard)
		}
	})

	t.Run("JoinSendsLiveMatches", func(t *testing.T) {
		conn := dial(t, "")
		// Make the tournament public so an anonymous observer can follow.
		if w := ts.do(testOwner, "PUT", tournamentURL("/permissions"), `{"public":"read"}`); w.Code != http.StatusOK {
			t.Fatalf("permissions = %d", w.Code)
		}
		conn.WriteJSON(Message{Type: MsgTypeJoin, MatchID: testMatchID})
		if msg := read(t, conn); msg.Type != MsgTypeAck || msg.MatchID != testMatchID {
			t.Fatalf("expected ACK, got %+v", msg)
		}
		msg := read(t, conn)
		if msg.Type != MsgTypeMatchUpdate || msg.Match.ID != testMatchID {
			t.Errorf("expected the match, got %+v", msg)
		}
		if w := ts.do(testOwner, "PUT", tournamentURL("/permissions"), `{"public":"none"}`); w.Code != http.StatusOK {
			t.Fatalf("permissions = %d", w.Code)
		}
	})

	t.Run("Forbidden", func(t *testing.T) {
		conn := dial(t, "stranger@example.com")
		conn.WriteJSON(Message{Type: MsgTypeJoin})
		msg := read(t, conn)
		if msg.Type != MsgTypeError || !strings.HasPrefix(msg.Error, "Forbidden") {
			t.Errorf("expected ERROR, got %+v", msg)
		}

		// An observer that never joined receives no updates.
		ts.do(testOwner, "POST", tournamentURL("/actions"), actionBody(t, ballAction(t, testMatchID, scoring.Ball{Runs: 1})))
		conn.WriteJSON(Message{Type: MsgTypePing})
		if msg := read(t, conn); msg.Type != MsgTypePong {
			t.Errorf("expected PONG only, got %+v", msg)
		}
	})

	t.Run("UnknownMatch", func(t *testing.T) {
		conn := dial(t, testOwner)
		conn.WriteJSON(Message{Type: MsgTypeJoin, MatchID: "33333333-3333-4333-8333-333333333333"})
		if msg := read(t, conn); msg.Type != MsgTypeError || msg.Error != "Match not found" {
			t.Errorf("expected ERROR, got %+v", msg)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		conn := dial(t, testOwner)
		conn.WriteJSON(Message{Type: "SHOUT"})
		if msg := read(t, conn); msg.Type != MsgTypeError {
			t.Errorf("expected ERROR, got %+v", msg)
		}
	})

	t.Run("BadTournamentID", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL("nope"), nil)
		if err == nil {
			t.Fatal("dial should fail")
		}
		if resp == nil || resp.StatusCode != http.StatusBadRequest {
			t.Errorf("response = %v", resp)
		}
	})

	t.Run("Deleted", func(t *testing.T) {
		conn := dial(t, testOwner)
		conn.WriteJSON(Message{Type: MsgTypeJoin, MatchID: testMatchID})
		read(t, conn) // ACK
		read(t, conn) // MATCH_UPDATE
		if w := ts.do(testOwner, "DELETE", tournamentURL(""), ""); w.Code != http.StatusOK {
			t.Fatalf("delete = %d", w.Code)
		}
		if msg := read(t, conn); msg.Type != MsgTypeError || msg.Error != "Tournament deleted" {
			t.Errorf("expected deletion notice, got %+v", msg)
		}
	})
}
