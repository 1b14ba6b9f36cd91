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

// BatsmanLine is a batsman at the crease with their innings figures.
type BatsmanLine struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	BattingFigures
}

type BowlerLine struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	BowlingFigures
}

// Scoreboard is the live view of a session pushed to observers.
type Scoreboard struct {
	MatchID        string         `json:"matchId"`
	Phase          Phase          `json:"phase"`
	Status         MatchStatus    `json:"status"`
	Innings        int            `json:"innings"`
	BattingTeam    string         `json:"battingTeam"`
	BowlingTeam    string         `json:"bowlingTeam"`
	Summary        InningsSummary `json:"summary"`
	RunRate        string         `json:"runRate"`
	RequiredRate   string         `json:"requiredRate,omitempty"`
	RemainingBalls int            `json:"remainingBalls"`
	Striker        *BatsmanLine   `json:"striker,omitempty"`
	NonStriker     *BatsmanLine   `json:"nonStriker,omitempty"`
	Bowler         *BowlerLine    `json:"bowler,omitempty"`
	ThisOver       []Delivery     `json:"thisOver"`
	Missing        Selection      `json:"missing"`
	Result         string         `json:"result"`
}

// Scoreboard summarizes the current innings.
func (s Session) Scoreboard() Scoreboard {
	teams := []Team{s.team1, s.team2}
	inn := s.match.CurrentInnings()
	ds := inn.Deliveries
	legal := LegalBalls(ds)
	sb := Scoreboard{
		MatchID:        s.match.ID,
		Phase:          s.phase,
		Status:         s.match.Status,
		Innings:        len(s.match.Innings),
		BattingTeam:    TeamName(teams, inn.BattingTeamID),
		BowlingTeam:    TeamName(teams, inn.BowlingTeamID),
		Summary:        Summarize(*inn),
		RunRate:        RunRate(ds),
		RemainingBalls: max(0, s.match.TotalOvers*BallsPerOver-legal),
		ThisOver:       OverDeliveries(ds, legal/BallsPerOver),
		Missing:        s.Missing(),
		Result:         Result(s.match, teams),
	}
	if inn.Target != nil && s.phase != PhaseCompleted {
		sb.RequiredRate = RequiredRate(*inn, s.match.TotalOvers)
	}
	ls := s.LiveState()
	if ls.StrikerID != "" {
		sb.Striker = &BatsmanLine{PlayerID: ls.StrikerID, Name: PlayerName(teams, ls.StrikerID), BattingFigures: BattingFor(ds, ls.StrikerID)}
	}
	if ls.NonStrikerID != "" {
		sb.NonStriker = &BatsmanLine{PlayerID: ls.NonStrikerID, Name: PlayerName(teams, ls.NonStrikerID), BattingFigures: BattingFor(ds, ls.NonStrikerID)}
	}
	if ls.CurrentBowlerID != "" {
		sb.Bowler = &BowlerLine{PlayerID: ls.CurrentBowlerID, Name: PlayerName(teams, ls.CurrentBowlerID), BowlingFigures: BowlingFor(ds, ls.CurrentBowlerID)}
	}
	return sb
}
