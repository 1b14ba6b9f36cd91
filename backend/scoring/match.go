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

package scoring

import (
	"fmt"
)

// MinSquadSize is the smallest team that can take the field.
const MinSquadSize = 2

func (c TossChoice) Valid() bool {
	return c == TossBat || c == TossBowl
}

func (s MatchStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusLive, StatusCompleted:
		return true
	}
	return false
}

// ValidateTeam checks that a team can be fielded: it has a name, at least
// two players and no duplicate player ids.
func ValidateTeam(t Team) error {
	if t.ID == "" || t.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidTeam)
	}
	if len(t.Players) < MinSquadSize {
		return fmt.Errorf("%w: %q has %d players, need at least %d", ErrInvalidTeam, t.Name, len(t.Players), MinSquadSize)
	}
	seen := make(map[string]bool, len(t.Players))
	for _, p := range t.Players {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("%w: player id and name are required", ErrInvalidTeam)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate player %q", ErrInvalidTeam, p.ID)
		}
		if p.Role != "" && !p.Role.Valid() {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidTeam, p.Role)
		}
		seen[p.ID] = true
	}
	return nil
}

// NewMatch sets up a match and opens the first innings. The toss winner
// bats first when they chose to bat.
func NewMatch(id string, team1, team2 Team, totalOvers int, tossWinnerID string, choice TossChoice, createdAt int64) (Match, error) {
	if id == "" {
		return Match{}, fmt.Errorf("%w: missing id", ErrInvalidMatch)
	}
	if team1.ID == team2.ID {
		return Match{}, fmt.Errorf("%w: a team cannot play itself", ErrInvalidMatch)
	}
	if tossWinnerID != team1.ID && tossWinnerID != team2.ID {
		return Match{}, fmt.Errorf("%w: toss winner %q is not playing", ErrInvalidMatch, tossWinnerID)
	}
	if totalOvers <= 0 {
		return Match{}, fmt.Errorf("%w: overs must be positive", ErrInvalidMatch)
	}
	if !choice.Valid() {
		return Match{}, fmt.Errorf("%w: unknown toss choice %q", ErrInvalidMatch, choice)
	}
	for _, t := range []Team{team1, team2} {
		if len(t.Players) < MinSquadSize {
			return Match{}, fmt.Errorf("%w: %q needs at least %d players", ErrInvalidMatch, t.Name, MinSquadSize)
		}
	}

	var batting, bowling string
	other := team1.ID
	if tossWinnerID == team1.ID {
		other = team2.ID
	}
	if choice == TossBat {
		batting, bowling = tossWinnerID, other
	} else {
		batting, bowling = other, tossWinnerID
	}

	return Match{
		ID:           id,
		Team1ID:      team1.ID,
		Team2ID:      team2.ID,
		TotalOvers:   totalOvers,
		TossWinnerID: tossWinnerID,
		TossChoice:   choice,
		Innings: []Innings{{
			BattingTeamID: batting,
			BowlingTeamID: bowling,
			Deliveries:    []Delivery{},
		}},
		Status:    StatusLive,
		CreatedAt: createdAt,
		LiveState: &MatchLiveState{},
	}, nil
}

// ValidateMatch checks a stored or imported match against the ledger
// invariants. Teams are looked up in the tournament's squads.
func ValidateMatch(m Match, teams []Team) error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidMatch)
	}
	if _, ok := FindTeam(teams, m.Team1ID); !ok {
		return fmt.Errorf("%w: unknown team %q", ErrInvalidMatch, m.Team1ID)
	}
	if _, ok := FindTeam(teams, m.Team2ID); !ok {
		return fmt.Errorf("%w: unknown team %q", ErrInvalidMatch, m.Team2ID)
	}
	if m.Team1ID == m.Team2ID || m.TotalOvers <= 0 {
		return fmt.Errorf("%w: bad teams or overs", ErrInvalidMatch)
	}
	if !m.Status.Valid() || !m.TossChoice.Valid() {
		return fmt.Errorf("%w: bad status %q or toss %q", ErrInvalidMatch, m.Status, m.TossChoice)
	}
	if len(m.Innings) > 2 {
		return fmt.Errorf("%w: %d innings", ErrInvalidMatch, len(m.Innings))
	}
	if m.Status == StatusCompleted && m.LiveState != nil {
		return fmt.Errorf("%w: completed match has live state", ErrInvalidMatch)
	}
	if m.WinnerID != "" && m.WinnerID != m.Team1ID && m.WinnerID != m.Team2ID {
		return fmt.Errorf("%w: winner %q is not playing", ErrInvalidMatch, m.WinnerID)
	}
	for i, inn := range m.Innings {
		pair := (inn.BattingTeamID == m.Team1ID && inn.BowlingTeamID == m.Team2ID) ||
			(inn.BattingTeamID == m.Team2ID && inn.BowlingTeamID == m.Team1ID)
		if !pair {
			return fmt.Errorf("%w: innings %d has the wrong teams", ErrInvalidMatch, i+1)
		}
		if (i == 1) != (inn.Target != nil) {
			return fmt.Errorf("%w: only the second innings has a target", ErrInvalidMatch)
		}
		for j, d := range inn.Deliveries {
			if err := d.Validate(); err != nil {
				return fmt.Errorf("innings %d ball %d: %w", i+1, j+1, err)
			}
		}
	}
	return nil
}
