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

// Phase is the explicit state of a live scoring session.
type Phase int

const (
	PhaseAwaitingSelection Phase = iota
	PhaseReady
	PhaseInningsBreak
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingSelection:
		return "AwaitingSelection"
	case PhaseReady:
		return "Ready"
	case PhaseInningsBreak:
		return "InningsBreak"
	case PhaseCompleted:
		return "Completed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for v := PhaseAwaitingSelection; v <= PhaseCompleted; v++ {
		if v.String() == string(b) {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// Rules are optional law checks on top of the basic scoring model.
type Rules struct {
	// StrictBowlerRotation forbids the bowler of the previous over from
	// bowling the next one.
	StrictBowlerRotation bool `json:"strictBowlerRotation"`
}

// Ball is the scorer's input for one delivery.
type Ball struct {
	Runs       int        `json:"runs"`
	Extra      ExtraType  `json:"extraType"`
	IsWicket   bool       `json:"isWicket"`
	WicketType WicketType `json:"wicketType"`
}

// Event describes what a recorded ball did to the match.
type Event struct {
	Delivery        Delivery  `json:"delivery"`
	OverComplete    bool      `json:"overComplete"`
	InningsComplete bool      `json:"inningsComplete"`
	MatchComplete   bool      `json:"matchComplete"`
	WinnerID        string    `json:"winnerId,omitempty"`
	Prompt          Selection `json:"prompt"`
}

// Session is the scoring state of one match. It is a value: every
// operation returns a new Session and leaves the receiver unchanged. On
// error the returned Session is the receiver.
type Session struct {
	match Match
	team1 Team
	team2 Team
	rules Rules
	phase Phase
}

// NewSession restores a session from a stored match and its two teams.
func NewSession(m Match, team1, team2 Team, rules Rules) (Session, error) {
	if team1.ID == m.Team2ID && team2.ID == m.Team1ID {
		team1, team2 = team2, team1
	}
	if team1.ID != m.Team1ID || team2.ID != m.Team2ID {
		return Session{}, fmt.Errorf("%w: teams %q/%q do not play match %q", ErrInvalidMatch, team1.ID, team2.ID, m.ID)
	}
	if len(m.Innings) == 0 || len(m.Innings) > 2 {
		return Session{}, fmt.Errorf("%w: match %q has %d innings", ErrInvalidMatch, m.ID, len(m.Innings))
	}
	s := Session{
		match: m.Clone(),
		team1: team1,
		team2: team2,
		rules: rules,
	}
	// A stored first innings can be over without its successor, which is
	// how a match is kept between the last ball and the start of the chase.
	if s.match.Status != StatusCompleted && len(s.match.Innings) == 1 && s.exhausted() {
		s.breakInnings()
		return s, nil
	}
	s.phase = s.restorePhase()
	return s, nil
}

// exhausted reports whether the current innings is out of balls or
// wickets, or has reached its target.
func (s Session) exhausted() bool {
	inn := s.match.CurrentInnings()
	if LegalBalls(inn.Deliveries) >= s.match.TotalOvers*BallsPerOver {
		return true
	}
	if WicketCount(inn.Deliveries) >= len(s.BattingTeam().Players)-1 {
		return true
	}
	return inn.Target != nil && Total(inn.Deliveries) >= *inn.Target
}

// breakInnings seals the first innings and opens the reply with the teams
// swapped and the target one run past the first innings total.
func (s *Session) breakInnings() {
	inn := s.match.CurrentInnings()
	inn.IsCompleted = true
	next := Total(inn.Deliveries) + 1
	s.match.Innings = append(s.match.Innings, Innings{
		BattingTeamID: inn.BowlingTeamID,
		BowlingTeamID: inn.BattingTeamID,
		Deliveries:    []Delivery{},
		Target:        &next,
	})
	s.match.LiveState = nil
	s.phase = PhaseInningsBreak
}

func (s Session) restorePhase() Phase {
	if s.match.Status == StatusCompleted {
		return PhaseCompleted
	}
	inn := s.match.CurrentInnings()
	ls := s.match.LiveState
	vacant := ls == nil || *ls == MatchLiveState{}
	if len(s.match.Innings) == 2 && len(inn.Deliveries) == 0 && vacant {
		return PhaseInningsBreak
	}
	return s.selectionPhase()
}

// selectionPhase is the phase of a live innings given the current selections.
func (s Session) selectionPhase() Phase {
	if s.missing() == SelectNone {
		return PhaseReady
	}
	return PhaseAwaitingSelection
}

func (s Session) missing() Selection {
	var ls MatchLiveState
	if s.match.LiveState != nil {
		ls = *s.match.LiveState
	}
	var m Selection
	if ls.StrikerID == "" {
		m |= SelectStriker
	}
	if ls.NonStrikerID == "" {
		m |= SelectNonStriker
	}
	if ls.CurrentBowlerID == "" {
		m |= SelectBowler
	}
	return m
}

// Match returns a copy of the match as it stands.
func (s Session) Match() Match { return s.match.Clone() }

func (s Session) Phase() Phase { return s.phase }

func (s Session) Rules() Rules { return s.rules }

// Missing reports the selections still needed before the next ball.
func (s Session) Missing() Selection {
	if s.phase == PhaseCompleted {
		return SelectNone
	}
	return s.missing()
}

// LiveState returns the current selections. The zero value means nothing
// is selected.
func (s Session) LiveState() MatchLiveState {
	if s.match.LiveState == nil {
		return MatchLiveState{}
	}
	return *s.match.LiveState
}

func (s Session) team(id string) Team {
	if id == s.team1.ID {
		return s.team1
	}
	return s.team2
}

func (s Session) BattingTeam() Team {
	return s.team(s.match.CurrentInnings().BattingTeamID)
}

func (s Session) BowlingTeam() Team {
	return s.team(s.match.CurrentInnings().BowlingTeamID)
}

// PreviousOverBowler is the bowler of the last completed over of the
// current innings, or "" during the first over.
func (s Session) PreviousOverBowler() string {
	inn := s.match.CurrentInnings()
	over := LegalBalls(inn.Deliveries)/BallsPerOver - 1
	if over < 0 {
		return ""
	}
	for i := len(inn.Deliveries) - 1; i >= 0; i-- {
		if d := inn.Deliveries[i]; d.Over == over {
			return d.BowlerID
		}
	}
	return ""
}

func (s Session) dismissed(id string) bool {
	for _, d := range s.match.CurrentInnings().Deliveries {
		if d.IsWicket && d.BatsmanID == id {
			return true
		}
	}
	return false
}

// edit returns a deep copy with a non-nil live state, ready to be changed.
func (s Session) edit() (Session, *MatchLiveState) {
	c := s
	c.match = s.match.Clone()
	if c.match.LiveState == nil {
		c.match.LiveState = &MatchLiveState{}
	}
	if c.match.Status == StatusUpcoming {
		c.match.Status = StatusLive
	}
	return c, c.match.LiveState
}

func (s Session) checkBatsman(id string) error {
	if !s.BattingTeam().HasPlayer(id) {
		return fmt.Errorf("%w: %q is not in the batting side", ErrUnknownPlayer, id)
	}
	if s.dismissed(id) {
		return fmt.Errorf("%w: %q is already out", ErrInvalidState, id)
	}
	return nil
}

// SelectBatsmen puts two batsmen at the crease.
func (s Session) SelectBatsmen(strikerID, nonStrikerID string) (Session, error) {
	if s.phase == PhaseCompleted {
		return s, ErrMatchCompleted
	}
	if strikerID == nonStrikerID {
		return s, fmt.Errorf("%w: striker and non-striker must differ", ErrInvalidState)
	}
	for _, id := range []string{strikerID, nonStrikerID} {
		if err := s.checkBatsman(id); err != nil {
			return s, err
		}
	}
	c, ls := s.edit()
	ls.StrikerID = strikerID
	ls.NonStrikerID = nonStrikerID
	c.phase = c.selectionPhase()
	return c, nil
}

// SelectIncomingBatsman fills the vacant batting slot, normally the
// striker's end after a wicket.
func (s Session) SelectIncomingBatsman(id string) (Session, error) {
	if s.phase == PhaseCompleted {
		return s, ErrMatchCompleted
	}
	if err := s.checkBatsman(id); err != nil {
		return s, err
	}
	c, ls := s.edit()
	switch {
	case ls.StrikerID == "" && ls.NonStrikerID != id:
		ls.StrikerID = id
	case ls.NonStrikerID == "" && ls.StrikerID != id:
		ls.NonStrikerID = id
	default:
		return s, fmt.Errorf("%w: no vacant batting slot for %q", ErrInvalidState, id)
	}
	c.phase = c.selectionPhase()
	return c, nil
}

func (s Session) SelectBowler(id string) (Session, error) {
	if s.phase == PhaseCompleted {
		return s, ErrMatchCompleted
	}
	if !s.BowlingTeam().HasPlayer(id) {
		return s, fmt.Errorf("%w: %q is not in the bowling side", ErrUnknownPlayer, id)
	}
	if s.rules.StrictBowlerRotation && id == s.PreviousOverBowler() {
		return s, fmt.Errorf("%w: %q bowled the previous over", ErrInvalidState, id)
	}
	c, ls := s.edit()
	ls.CurrentBowlerID = id
	c.phase = c.selectionPhase()
	return c, nil
}

func (s Session) SwapStrike() (Session, error) {
	if s.phase == PhaseCompleted {
		return s, ErrMatchCompleted
	}
	if m := s.missing() & (SelectStriker | SelectNonStriker); m != SelectNone {
		return s, &SelectionError{Missing: m}
	}
	c, ls := s.edit()
	ls.StrikerID, ls.NonStrikerID = ls.NonStrikerID, ls.StrikerID
	return c, nil
}

func normalizeBall(b Ball) (Ball, error) {
	extra, err := ParseExtraType(string(b.Extra))
	if err != nil {
		return b, fmt.Errorf("%w: %v", ErrInvalidDelivery, err)
	}
	wicket, err := ParseWicketType(string(b.WicketType))
	if err != nil {
		return b, fmt.Errorf("%w: %v", ErrInvalidDelivery, err)
	}
	b.Extra, b.WicketType = extra, wicket
	if b.Runs < 0 || b.Runs > 6 {
		return b, fmt.Errorf("%w: runs %d out of range", ErrInvalidDelivery, b.Runs)
	}
	if b.IsWicket == b.WicketType.IsNone() {
		return b, fmt.Errorf("%w: wicket flag and type %q disagree", ErrInvalidDelivery, b.WicketType)
	}
	return b, nil
}

// RecordBall appends one delivery to the current innings and applies its
// consequences. The end of innings and match is decided before strike
// rotation, so the last ball of an innings never rotates.
func (s Session) RecordBall(in Ball) (Session, Event, error) {
	if s.phase == PhaseCompleted {
		return s, Event{}, ErrMatchCompleted
	}
	if s.exhausted() {
		return s, Event{}, fmt.Errorf("%w: innings %d is already over", ErrInvalidState, len(s.match.Innings))
	}
	if m := s.missing(); m != SelectNone {
		return s, Event{Prompt: m}, &SelectionError{Missing: m}
	}
	b, err := normalizeBall(in)
	if err != nil {
		return s, Event{}, err
	}

	c, ls := s.edit()
	inn := c.match.CurrentInnings()
	legal := LegalBalls(inn.Deliveries)
	d := Delivery{
		BatsmanID:  ls.StrikerID,
		BowlerID:   ls.CurrentBowlerID,
		Runs:       b.Runs,
		ExtraType:  b.Extra,
		ExtraRuns:  b.Extra.PenaltyRuns(),
		IsWicket:   b.IsWicket,
		WicketType: b.WicketType,
		Over:       legal / BallsPerOver,
		Ball:       legal%BallsPerOver + 1,
	}
	inn.Deliveries = append(inn.Deliveries, d)

	total := Total(inn.Deliveries)
	wickets := WicketCount(inn.Deliveries)
	newLegal := LegalBalls(inn.Deliveries)
	overEnd := newLegal > 0 && newLegal%BallsPerOver == 0 && b.Extra.IsLegal()

	ev := Event{Delivery: d, OverComplete: overEnd}

	maxWickets := len(c.BattingTeam().Players) - 1
	outOfResources := wickets >= maxWickets || newLegal >= c.match.TotalOvers*BallsPerOver

	if len(c.match.Innings) > 1 {
		target := 0
		if inn.Target != nil {
			target = *inn.Target
		}
		if total >= target || outOfResources {
			inn.IsCompleted = true
			switch {
			case total >= target:
				c.match.WinnerID = inn.BattingTeamID
			case total < target-1:
				c.match.WinnerID = inn.BowlingTeamID
			default:
				c.match.WinnerID = ""
			}
			c.match.Status = StatusCompleted
			c.match.LiveState = nil
			c.phase = PhaseCompleted
			ev.InningsComplete = true
			ev.MatchComplete = true
			ev.WinnerID = c.match.WinnerID
			return c, ev, nil
		}
	} else if outOfResources {
		c.breakInnings()
		ev.InningsComplete = true
		ev.Prompt = SelectStriker | SelectNonStriker | SelectBowler
		return c, ev, nil
	}

	if b.IsWicket {
		// Only the striker can be dismissed in this model.
		ls.StrikerID = ""
	} else if b.Runs%2 == 1 {
		ls.StrikerID, ls.NonStrikerID = ls.NonStrikerID, ls.StrikerID
	}
	if overEnd {
		if !b.IsWicket {
			ls.StrikerID, ls.NonStrikerID = ls.NonStrikerID, ls.StrikerID
		}
		ls.CurrentBowlerID = ""
	}
	c.phase = c.selectionPhase()
	ev.Prompt = c.missing()
	return c, ev, nil
}

// UndoLastBall removes the most recent delivery of the current innings.
// Selections are left as they are; the scorer reconciles them by hand. A
// completed innings is never reopened.
func (s Session) UndoLastBall() (Session, error) {
	if s.phase == PhaseCompleted {
		return s, ErrMatchCompleted
	}
	inn := s.match.CurrentInnings()
	if len(inn.Deliveries) == 0 {
		return s, nil
	}
	c := s
	c.match = s.match.Clone()
	inn = c.match.CurrentInnings()
	inn.Deliveries = inn.Deliveries[:len(inn.Deliveries)-1]
	if c.phase != PhaseInningsBreak {
		c.phase = c.selectionPhase()
	}
	return c, nil
}
