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
	"testing"

	"github.com/c2FmZQ/storage"
	"github.com/google/uuid"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

const (
	testTournamentID = "11111111-1111-4111-8111-111111111111"
	testMatchID      = "22222222-2222-4222-8222-222222222222"
	testOwner        = "owner@example.com"
)

func lionsTeam() scoring.Team {
	return scoring.Team{ID: "lions", Name: "Lions", Players: []scoring.Player{
		{ID: "l1", Name: "Asha", Role: scoring.RoleBatsman},
		{ID: "l2", Name: "Bilal", Role: scoring.RoleAllRounder},
		{ID: "l3", Name: "Chen", Role: scoring.RoleBowler},
	}}
}

func tigersTeam() scoring.Team {
	return scoring.Team{ID: "tigers", Name: "Tigers", Players: []scoring.Player{
		{ID: "t1", Name: "Dev", Role: scoring.RoleBatsman},
		{ID: "t2", Name: "Emil", Role: scoring.RoleWicketkeeper},
		{ID: "t3", Name: "Farah", Role: scoring.RoleBowler},
	}}
}

// newTestStore returns an unencrypted store in a temporary directory.
func newTestStore(t *testing.T) (*storage.Storage, *TournamentStore) {
	t.Helper()
	dir := t.TempDir()
	s := storage.New(dir, nil)
	return s, NewTournamentStore(dir, s)
}

// newTestTournament returns a tournament owned by testOwner with the Lions
// and the Tigers registered.
func newTestTournament(id string) *TournamentRecord {
	t := &TournamentRecord{
		Tournament: scoring.Tournament{
			ID:          id,
			Name:        "Summer Cup",
			Teams:       []scoring.Team{lionsTeam(), tigersTeam()},
			CreatedAt:   1000,
			LastUpdated: 1000,
		},
		OwnerID: testOwner,
		Status:  StatusActive,
	}
	t.normalize()
	return t
}

// action builds an action envelope with a fresh id.
func action(t *testing.T, typ string, payload any) json.RawMessage {
	t.Helper()
	return actionWithID(t, uuid.NewString(), typ, payload)
}

func actionWithID(t *testing.T, id, typ string, payload any) json.RawMessage {
	t.Helper()
	p, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	b, err := json.Marshal(BaseAction{ID: id, Type: typ, Payload: p, Timestamp: 2000})
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}

func startMatchAction(t *testing.T, matchID string, overs int) json.RawMessage {
	return action(t, ActionMatchStart, map[string]any{
		"matchId":      matchID,
		"team1Id":      "lions",
		"team2Id":      "tigers",
		"totalOvers":   overs,
		"tossWinnerId": "lions",
		"tossChoice":   scoring.TossBat,
	})
}

func selectBatsmenAction(t *testing.T, matchID, striker, nonStriker string) json.RawMessage {
	return action(t, ActionSelectBatsmen, map[string]any{"matchId": matchID, "strikerId": striker, "nonStrikerId": nonStriker})
}

func selectPlayerAction(t *testing.T, typ, matchID, playerID string) json.RawMessage {
	return action(t, typ, map[string]any{"matchId": matchID, "playerId": playerID})
}

func ballAction(t *testing.T, matchID string, b scoring.Ball) json.RawMessage {
	return action(t, ActionRecordBall, map[string]any{
		"matchId":    matchID,
		"runs":       b.Runs,
		"extraType":  b.Extra,
		"isWicket":   b.IsWicket,
		"wicketType": b.WicketType,
	})
}

// openingActions starts a match with Asha and Bilal batting against
// Farah.
func openingActions(t *testing.T, matchID string, overs int) []json.RawMessage {
	return []json.RawMessage{
		startMatchAction(t, matchID, overs),
		selectBatsmenAction(t, matchID, "l1", "l2"),
		selectPlayerAction(t, ActionSelectBowler, matchID, "t3"),
	}
}

// wholeMatchActions plays a one-over match that the Tigers win: the Lions
// are all out for 0 and Dev scores the winning single.
func wholeMatchActions(t *testing.T, matchID string) []json.RawMessage {
	wicket := scoring.Ball{IsWicket: true, WicketType: scoring.WicketBowled}
	actions := openingActions(t, matchID, 1)
	return append(actions,
		ballAction(t, matchID, wicket),
		selectPlayerAction(t, ActionSelectIncomingBatsman, matchID, "l3"),
		ballAction(t, matchID, wicket),
		selectBatsmenAction(t, matchID, "t1", "t2"),
		selectPlayerAction(t, ActionSelectBowler, matchID, "l3"),
		ballAction(t, matchID, scoring.Ball{Runs: 1}),
	)
}
