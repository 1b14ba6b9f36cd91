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
	"bufio"
	"fmt"
	"io"
	"strings"
)

type BattingRow struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	HowOut   string `json:"howOut"`
	BattingFigures
}

type BowlingRow struct {
	PlayerID   string   `json:"playerId"`
	Name       string   `json:"name"`
	Dismissals []string `json:"dismissals,omitempty"`
	BowlingFigures
}

type InningsCard struct {
	Number      int          `json:"number"`
	BattingTeam string       `json:"battingTeam"`
	BowlingTeam string       `json:"bowlingTeam"`
	Batting     []BattingRow `json:"batting"`
	Bowling     []BowlingRow `json:"bowling"`
	Extras      Extras       `json:"extras"`
	ExtrasRuns  int          `json:"extrasRuns"`
	Total       int          `json:"total"`
	Wickets     int          `json:"wickets"`
	Overs       string       `json:"overs"`
	RunRate     string       `json:"runRate"`
	Target      *int         `json:"target,omitempty"`
}

// Scorecard is the full read-only report of a match.
type Scorecard struct {
	MatchID    string        `json:"matchId"`
	Title      string        `json:"title"`
	TotalOvers int           `json:"totalOvers"`
	Status     MatchStatus   `json:"status"`
	Result     string        `json:"result"`
	Innings    []InningsCard `json:"innings"`
}

func howOut(ds []Delivery, playerID string, teams []Team) string {
	for _, d := range ds {
		if d.BatsmanID != playerID || !d.IsWicket {
			continue
		}
		if d.WicketType == WicketRunOut {
			return "run out"
		}
		return fmt.Sprintf("%s b %s", strings.ToLower(string(d.WicketType)), PlayerName(teams, d.BowlerID))
	}
	return "not out"
}

// NewScorecard builds the batting and bowling cards of every innings.
// Batsmen and bowlers appear in squad order if any delivery of the innings
// names them, wides and no balls included.
func NewScorecard(m Match, teams []Team) Scorecard {
	sc := Scorecard{
		MatchID:    m.ID,
		Title:      TeamName(teams, m.Team1ID) + " vs " + TeamName(teams, m.Team2ID),
		TotalOvers: m.TotalOvers,
		Status:     m.Status,
		Result:     Result(m, teams),
	}
	for i, inn := range m.Innings {
		ds := inn.Deliveries
		legal := LegalBalls(ds)
		card := InningsCard{
			Number:      i + 1,
			BattingTeam: TeamName(teams, inn.BattingTeamID),
			BowlingTeam: TeamName(teams, inn.BowlingTeamID),
			Extras:      ExtrasBreakdown(ds),
			ExtrasRuns:  TotalExtras(ds),
			Total:       Total(ds),
			Wickets:     WicketCount(ds),
			Overs:       FormatOvers(legal),
			RunRate:     RunRate(ds),
			Target:      inn.Target,
		}
		batted, bowled := make(map[string]bool), make(map[string]bool)
		for _, d := range ds {
			batted[d.BatsmanID] = true
			bowled[d.BowlerID] = true
		}
		if bt, ok := FindTeam(teams, inn.BattingTeamID); ok {
			for _, p := range bt.Players {
				if !batted[p.ID] {
					continue
				}
				f := BattingFor(ds, p.ID)
				card.Batting = append(card.Batting, BattingRow{
					PlayerID:       p.ID,
					Name:           p.Name,
					HowOut:         howOut(ds, p.ID, teams),
					BattingFigures: f,
				})
			}
		}
		if bw, ok := FindTeam(teams, inn.BowlingTeamID); ok {
			for _, p := range bw.Players {
				if !bowled[p.ID] {
					continue
				}
				f := BowlingFor(ds, p.ID)
				row := BowlingRow{PlayerID: p.ID, Name: p.Name, BowlingFigures: f}
				for _, d := range ds {
					if d.BowlerID == p.ID && d.IsWicket && d.WicketType.CreditsBowler() {
						row.Dismissals = append(row.Dismissals, fmt.Sprintf("%s (%s)", PlayerName(teams, d.BatsmanID), d.WicketType))
					}
				}
				card.Bowling = append(card.Bowling, row)
			}
		}
		sc.Innings = append(sc.Innings, card)
	}
	return sc
}

// WriteText renders the scorecard as fixed-width plain text.
func (sc Scorecard) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s (%d overs)\n", sc.Title, sc.TotalOvers)
	fmt.Fprintf(bw, "Result: %s\n", sc.Result)
	for _, c := range sc.Innings {
		fmt.Fprintf(bw, "\nInnings %d: %s %d/%d (%s ov, RR %s)\n", c.Number, c.BattingTeam, c.Total, c.Wickets, c.Overs, c.RunRate)
		if c.Target != nil {
			fmt.Fprintf(bw, "Target: %d\n", *c.Target)
		}
		fmt.Fprintf(bw, "%-20s %-24s %4s %4s %3s %3s %7s\n", "Batsman", "", "R", "B", "4s", "6s", "SR")
		for _, r := range c.Batting {
			fmt.Fprintf(bw, "%-20s %-24s %4d %4d %3d %3d %7s\n", r.Name, r.HowOut, r.Runs, r.Balls, r.Fours, r.Sixes, r.StrikeRate)
		}
		fmt.Fprintf(bw, "Extras %d (w %d, nb %d, b %d, lb %d)\n", c.ExtrasRuns, c.Extras.Wides, c.Extras.NoBalls, c.Extras.Byes, c.Extras.LegByes)
		fmt.Fprintf(bw, "%-20s %5s %4s %3s %7s\n", "Bowler", "O", "R", "W", "Econ")
		for _, r := range c.Bowling {
			fmt.Fprintf(bw, "%-20s %5s %4d %3d %7s\n", r.Name, r.Overs, r.RunsConceded, r.Wickets, r.Economy)
			for _, d := range r.Dismissals {
				fmt.Fprintf(bw, "  - %s\n", d)
			}
		}
	}
	return bw.Flush()
}

// String returns the text rendering.
func (sc Scorecard) String() string {
	var sb strings.Builder
	sc.WriteText(&sb)
	return sb.String()
}
