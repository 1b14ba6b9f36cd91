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
	"slices"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// ActionOutcome is what applying one action did.
type ActionOutcome struct {
	ActionID string `json:"actionId"`
	// Applied is false when the action was a duplicate.
	Applied bool   `json:"applied"`
	MatchID string `json:"matchId,omitempty"`
	// Event is set for RECORD_BALL.
	Event *scoring.Event `json:"event,omitempty"`
}

func decodePayload(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return nil
}

// Session returns the scoring session of a match in the tournament.
func (t *TournamentRecord) Session(matchID string) (scoring.Session, int, error) {
	idx := t.Match(matchID)
	if idx < 0 {
		return scoring.Session{}, -1, fmt.Errorf("%w: match %s", ErrNotFound, matchID)
	}
	m := t.Matches[idx]
	team1, _ := scoring.FindTeam(t.Teams, m.Team1ID)
	team2, _ := scoring.FindTeam(t.Teams, m.Team2ID)
	s, err := scoring.NewSession(m, team1, team2, t.Rules)
	if err != nil {
		return scoring.Session{}, -1, err
	}
	return s, idx, nil
}

// hasApplied reports whether the action id is among the recent ones.
func (t *TournamentRecord) hasApplied(id string) bool {
	for i, count := len(t.RecentActionIDs)-1, 0; i >= 0 && count < maxActionScan; i, count = i-1, count+1 {
		if t.RecentActionIDs[i] == id {
			return true
		}
	}
	return false
}

func (t *TournamentRecord) rememberAction(id string) {
	t.RecentActionIDs = append(t.RecentActionIDs, id)
	if n := len(t.RecentActionIDs); n > maxRecentActionIDs {
		t.RecentActionIDs = slices.Clone(t.RecentActionIDs[n-maxRecentActionIDs:])
	}
}

// ApplyActions applies a batch of actions. Either all of them apply or
// the record is left unchanged.
func ApplyActions(t *TournamentRecord, actions []json.RawMessage) ([]ActionOutcome, error) {
	work := t.Clone()
	outcomes := make([]ActionOutcome, 0, len(actions))
	for i, raw := range actions {
		out, err := ApplyAction(work, raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		outcomes = append(outcomes, out)
	}
	*t = *work
	return outcomes, nil
}

// ApplyAction applies one action to the tournament. It assumes validation
// and authorization have already been performed. It is deterministic: the
// only clock it reads is the action timestamp. On error the record is
// unchanged.
func ApplyAction(t *TournamentRecord, raw json.RawMessage) (ActionOutcome, error) {
	var action BaseAction
	if err := json.Unmarshal(raw, &action); err != nil {
		return ActionOutcome{}, fmt.Errorf("%w: failed to unmarshal action for apply: %v", ErrInvalidAction, err)
	}
	out := ActionOutcome{ActionID: action.ID}
	if t.hasApplied(action.ID) {
		return out, nil
	}

	var err error
	switch action.Type {
	case ActionTournamentUpdate:
		err = applyTournamentUpdate(t, action.Payload)
	case ActionTeamSave:
		err = applyTeamSave(t, action.Payload)
	case ActionTeamDelete:
		err = applyTeamDelete(t, action.Payload)
	case ActionMatchStart:
		out.MatchID, err = applyMatchStart(t, action)
	case ActionMatchDelete:
		var p matchRefPayload
		if err = decodePayload(action.Payload, &p); err == nil {
			out.MatchID = p.MatchID
			idx := t.Match(p.MatchID)
			if idx < 0 {
				err = fmt.Errorf("%w: match %s", ErrNotFound, p.MatchID)
			} else {
				t.Matches = slices.Delete(t.Matches, idx, idx+1)
			}
		}
	default:
		out.MatchID, out.Event, err = applyScoring(t, action)
	}
	if err != nil {
		return ActionOutcome{}, err
	}

	out.Applied = true
	t.rememberAction(action.ID)
	if action.Timestamp > t.LastUpdated {
		t.LastUpdated = action.Timestamp
	}
	return out, nil
}

func applyTournamentUpdate(t *TournamentRecord, payload json.RawMessage) error {
	var p tournamentUpdatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.StrictBowlerRotation != nil {
		t.Rules.StrictBowlerRotation = *p.StrictBowlerRotation
	}
	return nil
}

// usedPlayers returns the ids of the team's players that appear in a
// match ledger or on the field.
func (t *TournamentRecord) usedPlayers(teamID string) map[string]bool {
	used := make(map[string]bool)
	for _, m := range t.Matches {
		if m.Team1ID != teamID && m.Team2ID != teamID {
			continue
		}
		for _, inn := range m.Innings {
			for _, d := range inn.Deliveries {
				used[d.BatsmanID] = true
				used[d.BowlerID] = true
			}
		}
		if ls := m.LiveState; ls != nil {
			used[ls.StrikerID] = true
			used[ls.NonStrikerID] = true
			used[ls.CurrentBowlerID] = true
		}
	}
	return used
}

func applyTeamSave(t *TournamentRecord, payload json.RawMessage) error {
	var team scoring.Team
	if err := json.Unmarshal(payload, &team); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if err := scoring.ValidateTeam(team); err != nil {
		return err
	}
	idx := t.Team(team.ID)
	if idx < 0 {
		if len(t.Teams) >= maxTeams {
			return fmt.Errorf("%w: too many teams (max %d)", ErrInvalidAction, maxTeams)
		}
		t.Teams = append(t.Teams, team)
		return nil
	}
	// Players with match history stay in the squad.
	for id := range t.usedPlayers(team.ID) {
		if id != "" && t.Teams[idx].HasPlayer(id) && !team.HasPlayer(id) {
			return fmt.Errorf("%w: player %s has match history", scoring.ErrInvalidState, id)
		}
	}
	t.Teams[idx] = team
	return nil
}

func applyTeamDelete(t *TournamentRecord, payload json.RawMessage) error {
	var p teamDeletePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	idx := t.Team(p.TeamID)
	if idx < 0 {
		return fmt.Errorf("%w: team %s", ErrNotFound, p.TeamID)
	}
	for _, m := range t.Matches {
		if m.Team1ID == p.TeamID || m.Team2ID == p.TeamID {
			return fmt.Errorf("%w: team %s has matches", scoring.ErrInvalidState, p.TeamID)
		}
	}
	t.Teams = slices.Delete(t.Teams, idx, idx+1)
	return nil
}

func applyMatchStart(t *TournamentRecord, action BaseAction) (string, error) {
	var p matchStartPayload
	if err := json.Unmarshal(action.Payload, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if t.Match(p.MatchID) >= 0 {
		return p.MatchID, fmt.Errorf("%w: match %s already exists", scoring.ErrInvalidState, p.MatchID)
	}
	if len(t.Matches) >= maxMatches {
		return p.MatchID, fmt.Errorf("%w: too many matches (max %d)", ErrInvalidAction, maxMatches)
	}
	team1, ok1 := scoring.FindTeam(t.Teams, p.Team1ID)
	team2, ok2 := scoring.FindTeam(t.Teams, p.Team2ID)
	if !ok1 || !ok2 {
		return p.MatchID, fmt.Errorf("%w: unknown team", ErrNotFound)
	}
	m, err := scoring.NewMatch(p.MatchID, team1, team2, p.TotalOvers, p.TossWinnerID, p.TossChoice, action.Timestamp)
	if err != nil {
		return p.MatchID, err
	}
	t.Matches = append(t.Matches, m)
	return p.MatchID, nil
}

// applyScoring runs a live scoring action through the match session and
// stores the resulting match.
func applyScoring(t *TournamentRecord, action BaseAction) (string, *scoring.Event, error) {
	var ref matchRefPayload
	if err := json.Unmarshal(action.Payload, &ref); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	s, idx, err := t.Session(ref.MatchID)
	if err != nil {
		return ref.MatchID, nil, err
	}

	var ev *scoring.Event
	switch action.Type {
	case ActionSelectBatsmen:
		var p selectBatsmenPayload
		if err = decodePayload(action.Payload, &p); err == nil {
			s, err = s.SelectBatsmen(p.StrikerID, p.NonStrikerID)
		}
	case ActionSelectIncomingBatsman:
		var p selectPlayerPayload
		if err = decodePayload(action.Payload, &p); err == nil {
			s, err = s.SelectIncomingBatsman(p.PlayerID)
		}
	case ActionSelectBowler:
		var p selectPlayerPayload
		if err = decodePayload(action.Payload, &p); err == nil {
			s, err = s.SelectBowler(p.PlayerID)
		}
	case ActionSwapStrike:
		s, err = s.SwapStrike()
	case ActionRecordBall:
		var p recordBallPayload
		if err = decodePayload(action.Payload, &p); err == nil {
			var e scoring.Event
			s, e, err = s.RecordBall(p.Ball)
			ev = &e
		}
	case ActionUndoBall:
		s, err = s.UndoLastBall()
	default:
		err = fmt.Errorf("%w: unknown action type: %s", ErrInvalidAction, action.Type)
	}
	if err != nil {
		return ref.MatchID, nil, err
	}
	t.Matches[idx] = s.Match()
	return ref.MatchID, ev, nil
}
