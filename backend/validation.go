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
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// uuidRegex is a regex for standard UUIDs (8-4-4-4-12 hex digits)
var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// isValidUUID checks if the string is a valid UUID.
func isValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// isValidEmail checks if the string is a valid email address.
func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// BaseAction represents the common fields of an action.
type BaseAction struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     int64           `json:"timestamp"`
	SchemaVersion int             `json:"schemaVersion,omitempty"`
}

type tournamentUpdatePayload struct {
	Name                 *string `json:"name"`
	StrictBowlerRotation *bool   `json:"strictBowlerRotation"`
}

type teamDeletePayload struct {
	TeamID string `json:"teamId"`
}

type matchStartPayload struct {
	MatchID      string             `json:"matchId"`
	Team1ID      string             `json:"team1Id"`
	Team2ID      string             `json:"team2Id"`
	TotalOvers   int                `json:"totalOvers"`
	TossWinnerID string             `json:"tossWinnerId"`
	TossChoice   scoring.TossChoice `json:"tossChoice"`
}

type matchRefPayload struct {
	MatchID string `json:"matchId"`
}

type selectBatsmenPayload struct {
	MatchID      string `json:"matchId"`
	StrikerID    string `json:"strikerId"`
	NonStrikerID string `json:"nonStrikerId"`
}

type selectPlayerPayload struct {
	MatchID  string `json:"matchId"`
	PlayerID string `json:"playerId"`
}

type recordBallPayload struct {
	MatchID string `json:"matchId"`
	scoring.Ball
}

// ValidateActions validates a batch of actions.
func ValidateActions(actions []json.RawMessage) error {
	if len(actions) > maxActionsPerBatch {
		return fmt.Errorf("%w: too many actions (max %d)", ErrInvalidAction, maxActionsPerBatch)
	}
	for i, raw := range actions {
		if err := ValidateAction(raw); err != nil {
			return fmt.Errorf("invalid action at index %d: %w", i, err)
		}
	}
	return nil
}

// ValidateAction validates a single action from raw JSON. It checks the
// shape of the payload, not whether it applies to the current state.
func ValidateAction(raw json.RawMessage) error {
	var action BaseAction
	if err := json.Unmarshal(raw, &action); err != nil {
		return fmt.Errorf("%w: malformed action JSON", ErrInvalidAction)
	}
	if !isValidUUID(action.ID) {
		return fmt.Errorf("%w: invalid action ID: %s", ErrInvalidAction, action.ID)
	}
	if action.Type == "" {
		return fmt.Errorf("%w: missing action type", ErrInvalidAction)
	}
	if action.Timestamp < 0 {
		return fmt.Errorf("%w: negative timestamp", ErrInvalidAction)
	}
	if err := validateActionPayload(action.Type, action.Payload); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAction, action.Type, err)
	}
	return nil
}

// validateActionPayload validates the payload based on the action type.
func validateActionPayload(actionType string, payload json.RawMessage) error {
	switch actionType {
	case ActionTournamentUpdate:
		var p tournamentUpdatePayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return err
		}
		if p.Name != nil {
			return validateName(*p.Name, "tournament name")
		}
		return nil
	case ActionTeamSave:
		var t scoring.Team
		if err := strictUnmarshal(payload, &t); err != nil {
			return err
		}
		return validateTeamPayload(t)
	case ActionTeamDelete:
		var p teamDeletePayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return err
		}
		return validateID(p.TeamID, "team ID")
	case ActionMatchStart:
		var p matchStartPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return err
		}
		if !isValidUUID(p.MatchID) {
			return fmt.Errorf("invalid match ID: %s", p.MatchID)
		}
		if err := validateID(p.Team1ID, "team1 ID"); err != nil {
			return err
		}
		if err := validateID(p.Team2ID, "team2 ID"); err != nil {
			return err
		}
		if p.TotalOvers < 1 || p.TotalOvers > maxOvers {
			return fmt.Errorf("invalid total overs: %d", p.TotalOvers)
		}
		if !p.TossChoice.Valid() {
			return fmt.Errorf("invalid toss choice: %q", p.TossChoice)
		}
		return validateID(p.TossWinnerID, "toss winner ID")
	case ActionMatchDelete, ActionSwapStrike, ActionUndoBall:
		var p matchRefPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return err
		}
		return validateMatchID(p.MatchID)
	case ActionSelectBatsmen:
		var p selectBatsmenPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return err
		}
		if err := validateMatchID(p.MatchID); err != nil {
			return err
		}
		if err := validateID(p.StrikerID, "striker ID"); err != nil {
			return err
		}
		return validateID(p.NonStrikerID, "non-striker ID")
	case ActionSelectIncomingBatsman, ActionSelectBowler:
		var p selectPlayerPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return err
		}
		if err := validateMatchID(p.MatchID); err != nil {
			return err
		}
		return validateID(p.PlayerID, "player ID")
	case ActionRecordBall:
		var p recordBallPayload
		if err := strictUnmarshal(payload, &p); err != nil {
			return err
		}
		if err := validateMatchID(p.MatchID); err != nil {
			return err
		}
		if p.Runs < 0 || p.Runs > 6 {
			return fmt.Errorf("runs %d out of range", p.Runs)
		}
		return nil
	default:
		return fmt.Errorf("unknown action type: %s", actionType)
	}
}

// strictUnmarshal decodes a payload and rejects unknown fields.
func strictUnmarshal(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("missing payload")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// validateStringLen checks if the string length is within the limit.
func validateStringLen(s string, max int, name string) error {
	if len(s) > max {
		return fmt.Errorf("%s too long (max %d chars)", name, max)
	}
	return nil
}

func validateName(s, name string) error {
	if s == "" {
		return fmt.Errorf("missing %s", name)
	}
	return validateStringLen(s, maxNameLen, name)
}

func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("missing %s", name)
	}
	return validateStringLen(id, 64, name)
}

func validateMatchID(id string) error {
	if !isValidUUID(id) {
		return fmt.Errorf("invalid match ID: %s", id)
	}
	return nil
}

func validateTeamPayload(t scoring.Team) error {
	if err := scoring.ValidateTeam(t); err != nil {
		return err
	}
	if err := validateID(t.ID, "team ID"); err != nil {
		return err
	}
	if err := validateName(t.Name, "team name"); err != nil {
		return err
	}
	if err := validateStringLen(t.Logo, maxLogoLen, "team logo"); err != nil {
		return err
	}
	if len(t.Players) > maxPlayers {
		return fmt.Errorf("too many players (max %d)", maxPlayers)
	}
	for _, p := range t.Players {
		if err := validateID(p.ID, "player ID"); err != nil {
			return err
		}
		if err := validateName(p.Name, "player name"); err != nil {
			return err
		}
		if err := validateStringLen(p.Logo, maxLogoLen, "player logo"); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTournamentData validates an imported tournament file. The
// top-level shape is checked first so that a wrong file gets a clear
// message, then the nested teams and matches.
func ValidateTournamentData(data []byte) (scoring.Tournament, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return scoring.Tournament{}, fmt.Errorf("%w: not a JSON object", ErrFormat)
	}
	var name string
	if err := json.Unmarshal(shape["name"], &name); err != nil || name == "" {
		return scoring.Tournament{}, fmt.Errorf("%w: missing name", ErrFormat)
	}
	for _, key := range []string{"teams", "matches"} {
		if v := bytes.TrimSpace(shape[key]); len(v) == 0 || v[0] != '[' {
			return scoring.Tournament{}, fmt.Errorf("%w: %s must be an array", ErrFormat, key)
		}
	}

	var t scoring.Tournament
	if err := json.Unmarshal(data, &t); err != nil {
		return scoring.Tournament{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := validateName(t.Name, "name"); err != nil {
		return scoring.Tournament{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(t.Teams) > maxTeams || len(t.Matches) > maxMatches {
		return scoring.Tournament{}, fmt.Errorf("%w: too many teams or matches", ErrFormat)
	}
	seenTeams := make(map[string]bool)
	for i, team := range t.Teams {
		if err := validateTeamPayload(team); err != nil {
			return scoring.Tournament{}, fmt.Errorf("%w: team %d: %v", ErrFormat, i, err)
		}
		if seenTeams[team.ID] {
			return scoring.Tournament{}, fmt.Errorf("%w: duplicate team %s", ErrFormat, team.ID)
		}
		seenTeams[team.ID] = true
	}
	seenMatches := make(map[string]bool)
	for i, m := range t.Matches {
		if err := scoring.ValidateMatch(m, t.Teams); err != nil {
			return scoring.Tournament{}, fmt.Errorf("%w: match %d: %v", ErrFormat, i, err)
		}
		if seenMatches[m.ID] {
			return scoring.Tournament{}, fmt.Errorf("%w: duplicate match %s", ErrFormat, m.ID)
		}
		seenMatches[m.ID] = true
	}
	return t, nil
}

// validatePermissions checks a sharing update.
func validatePermissions(p Permissions) error {
	switch p.Public {
	case "", PermissionNone, PermissionRead:
	default:
		return fmt.Errorf("%w: invalid public access %q", ErrInvalidAction, p.Public)
	}
	if len(p.Users) > maxPlayers {
		return fmt.Errorf("%w: too many users (max %d)", ErrInvalidAction, maxPlayers)
	}
	for email, role := range p.Users {
		if !isValidEmail(email) {
			return fmt.Errorf("%w: invalid email %q", ErrInvalidAction, email)
		}
		switch role {
		case PermissionRead, PermissionWrite, PermissionAdmin:
		default:
			return fmt.Errorf("%w: invalid role %q for %s", ErrInvalidAction, role, email)
		}
	}
	return nil
}
