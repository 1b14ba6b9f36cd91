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

// Package scoring implements the cricket scoring rules: the delivery ledger,
// innings aggregates, player statistics and the live scoring state machine.
// Everything in this package is pure and synchronous.
package scoring

import (
	"fmt"
)

// PlayerRole is display-only and never gates a scoring action.
type PlayerRole string

const (
	RoleBatsman      PlayerRole = "Batsman"
	RoleBowler       PlayerRole = "Bowler"
	RoleAllRounder   PlayerRole = "All-Rounder"
	RoleWicketkeeper PlayerRole = "Wicketkeeper"
)

func (r PlayerRole) Valid() bool {
	switch r {
	case RoleBatsman, RoleBowler, RoleAllRounder, RoleWicketkeeper:
		return true
	}
	return false
}

// ExtraType is the closed set of extras a delivery can carry.
type ExtraType string

const (
	ExtraNone   ExtraType = "None"
	ExtraWide   ExtraType = "Wide"
	ExtraNoBall ExtraType = "No Ball"
	ExtraBye    ExtraType = "Bye"
	ExtraLegBye ExtraType = "Leg Bye"
)

// ExtraTypes lists every extra type in display order.
var ExtraTypes = []ExtraType{ExtraNone, ExtraWide, ExtraNoBall, ExtraBye, ExtraLegBye}

// ParseExtraType accepts the display spelling and the compact one
// ("NoBall", "LegBye"). The empty string means ExtraNone.
func ParseExtraType(s string) (ExtraType, error) {
	switch s {
	case "", "None":
		return ExtraNone, nil
	case "Wide":
		return ExtraWide, nil
	case "No Ball", "NoBall":
		return ExtraNoBall, nil
	case "Bye":
		return ExtraBye, nil
	case "Leg Bye", "LegBye":
		return ExtraLegBye, nil
	}
	return "", fmt.Errorf("unknown extra type %q", s)
}

func (e *ExtraType) UnmarshalText(b []byte) error {
	v, err := ParseExtraType(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Valid reports whether e is a canonical spelling or empty.
func (e ExtraType) Valid() bool {
	v, err := ParseExtraType(string(e))
	return err == nil && (v == e || e == "")
}

// IsLegal reports whether the delivery counts towards the over.
func (e ExtraType) IsLegal() bool {
	switch e {
	case ExtraWide, ExtraNoBall:
		return false
	case ExtraNone, ExtraBye, ExtraLegBye, "":
		return true
	}
	panic(fmt.Sprintf("scoring: unhandled extra type %q", string(e)))
}

// PenaltyRuns is the mandatory run added to the total for the extra.
func (e ExtraType) PenaltyRuns() int {
	if e.IsLegal() {
		return 0
	}
	return 1
}

// WicketType is the closed set of dismissal kinds.
type WicketType string

const (
	WicketNone      WicketType = "None"
	WicketBowled    WicketType = "Bowled"
	WicketCaught    WicketType = "Caught"
	WicketLBW       WicketType = "LBW"
	WicketRunOut    WicketType = "Run Out"
	WicketStumped   WicketType = "Stumped"
	WicketHitWicket WicketType = "Hit Wicket"
)

// ParseWicketType accepts the display spelling and the compact one
// ("RunOut", "HitWicket"). The empty string means WicketNone.
func ParseWicketType(s string) (WicketType, error) {
	switch s {
	case "", "None":
		return WicketNone, nil
	case "Bowled":
		return WicketBowled, nil
	case "Caught":
		return WicketCaught, nil
	case "LBW":
		return WicketLBW, nil
	case "Run Out", "RunOut":
		return WicketRunOut, nil
	case "Stumped":
		return WicketStumped, nil
	case "Hit Wicket", "HitWicket":
		return WicketHitWicket, nil
	}
	return "", fmt.Errorf("unknown wicket type %q", s)
}

func (w *WicketType) UnmarshalText(b []byte) error {
	v, err := ParseWicketType(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

func (w WicketType) Valid() bool {
	v, err := ParseWicketType(string(w))
	return err == nil && (v == w || w == "")
}

// IsNone reports whether the value means "not out". The zero value counts.
func (w WicketType) IsNone() bool {
	return w == WicketNone || w == ""
}

// CreditsBowler reports whether the dismissal counts in the bowler's figures.
func (w WicketType) CreditsBowler() bool {
	switch w {
	case WicketBowled, WicketCaught, WicketLBW, WicketStumped, WicketHitWicket:
		return true
	case WicketNone, WicketRunOut, "":
		return false
	}
	panic(fmt.Sprintf("scoring: unhandled wicket type %q", string(w)))
}

type TossChoice string

const (
	TossBat  TossChoice = "Bat"
	TossBowl TossChoice = "Bowl"
)

type MatchStatus string

const (
	StatusUpcoming  MatchStatus = "Upcoming"
	StatusLive      MatchStatus = "Live"
	StatusCompleted MatchStatus = "Completed"
)

// Player is a squad member. Identity is immutable.
type Player struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Role PlayerRole `json:"role"`
	Logo string     `json:"logo,omitempty"`
}

// Team is an ordered squad.
type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Players []Player `json:"players"`
	Logo    string   `json:"logo,omitempty"`
}

// HasPlayer reports whether the player id is in the squad.
func (t Team) HasPlayer(id string) bool {
	for _, p := range t.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Delivery is one ball of the ledger. Runs are batted runs (or byes);
// ExtraRuns is the one-run penalty for a wide or no ball.
type Delivery struct {
	BatsmanID  string     `json:"batsmanId"`
	BowlerID   string     `json:"bowlerId"`
	Runs       int        `json:"runs"`
	ExtraType  ExtraType  `json:"extraType"`
	ExtraRuns  int        `json:"extraRuns"`
	IsWicket   bool       `json:"isWicket"`
	WicketType WicketType `json:"wicketType"`
	Over       int        `json:"over"`
	Ball       int        `json:"ball"`
}

// Validate checks the ledger invariants of a single delivery.
func (d Delivery) Validate() error {
	if !d.ExtraType.Valid() || !d.WicketType.Valid() {
		return fmt.Errorf("%w: unknown tag %q/%q", ErrInvalidDelivery, d.ExtraType, d.WicketType)
	}
	if d.Runs < 0 || d.Runs > 6 {
		return fmt.Errorf("%w: runs %d out of range", ErrInvalidDelivery, d.Runs)
	}
	if d.ExtraRuns != d.ExtraType.PenaltyRuns() {
		return fmt.Errorf("%w: extra runs %d do not match %s", ErrInvalidDelivery, d.ExtraRuns, d.ExtraType)
	}
	if d.IsWicket == d.WicketType.IsNone() {
		return fmt.Errorf("%w: wicket flag and type %q disagree", ErrInvalidDelivery, d.WicketType)
	}
	if d.Over < 0 || d.Ball < 1 {
		return fmt.Errorf("%w: bad over/ball %d.%d", ErrInvalidDelivery, d.Over, d.Ball)
	}
	return nil
}

type Innings struct {
	BattingTeamID string     `json:"battingTeamId"`
	BowlingTeamID string     `json:"bowlingTeamId"`
	Deliveries    []Delivery `json:"deliveries"`
	IsCompleted   bool       `json:"isCompleted"`
	Target        *int       `json:"target,omitempty"`
}

// MatchLiveState holds the on-field selections while an innings is live.
// An empty id means the slot is vacant.
type MatchLiveState struct {
	StrikerID       string `json:"strikerId"`
	NonStrikerID    string `json:"nonStrikerId"`
	CurrentBowlerID string `json:"currentBowlerId"`
}

type Match struct {
	ID           string          `json:"id"`
	Team1ID      string          `json:"team1Id"`
	Team2ID      string          `json:"team2Id"`
	TotalOvers   int             `json:"totalOvers"`
	TossWinnerID string          `json:"tossWinnerId"`
	TossChoice   TossChoice      `json:"tossChoice"`
	Innings      []Innings       `json:"innings"`
	Status       MatchStatus     `json:"status"`
	WinnerID     string          `json:"winnerId,omitempty"`
	CreatedAt    int64           `json:"createdAt"`
	LiveState    *MatchLiveState `json:"liveState,omitempty"`
}

// CurrentInnings returns the last innings, or nil before the match starts.
func (m *Match) CurrentInnings() *Innings {
	if len(m.Innings) == 0 {
		return nil
	}
	return &m.Innings[len(m.Innings)-1]
}

// Clone returns a deep copy.
func (m Match) Clone() Match {
	c := m
	if m.LiveState != nil {
		ls := *m.LiveState
		c.LiveState = &ls
	}
	c.Innings = make([]Innings, len(m.Innings))
	for i, inn := range m.Innings {
		c.Innings[i] = inn
		c.Innings[i].Deliveries = append([]Delivery(nil), inn.Deliveries...)
		if inn.Target != nil {
			t := *inn.Target
			c.Innings[i].Target = &t
		}
	}
	return c
}

type Tournament struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Teams       []Team  `json:"teams"`
	Matches     []Match `json:"matches"`
	CreatedAt   int64   `json:"createdAt"`
	LastUpdated int64   `json:"lastUpdated"`
}

// FindTeam returns the team with the id.
func FindTeam(teams []Team, id string) (Team, bool) {
	for _, t := range teams {
		if t.ID == id {
			return t, true
		}
	}
	return Team{}, false
}

// FindPlayer searches every squad for the player id.
func FindPlayer(teams []Team, id string) (Player, Team, bool) {
	for _, t := range teams {
		for _, p := range t.Players {
			if p.ID == id {
				return p, t, true
			}
		}
	}
	return Player{}, Team{}, false
}

// TeamName resolves a team id to its name, or "Unknown".
func TeamName(teams []Team, id string) string {
	if t, ok := FindTeam(teams, id); ok {
		return t.Name
	}
	return "Unknown"
}

// PlayerName resolves a player id to its name, or "Unknown".
func PlayerName(teams []Team, id string) string {
	if p, _, ok := FindPlayer(teams, id); ok {
		return p.Name
	}
	return "Unknown"
}
