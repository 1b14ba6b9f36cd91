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
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ratio returns num*scale/den with two decimals, or "0.00" when den is zero.
func ratio(num, den int, scale decimal.Decimal) string {
	if den <= 0 {
		return "0.00"
	}
	return decimal.NewFromInt(int64(num)).Mul(scale).Div(decimal.NewFromInt(int64(den))).StringFixed(2)
}

// StrikeRate is runs per hundred balls faced.
func StrikeRate(runs, balls int) string {
	return ratio(runs, balls, hundred)
}

// Economy is runs conceded per six legal balls.
func Economy(runsConceded, legalBalls int) string {
	return ratio(runsConceded, legalBalls, decimal.NewFromInt(BallsPerOver))
}

// RunRate is the innings run rate per over.
func RunRate(ds []Delivery) string {
	return Economy(Total(ds), LegalBalls(ds))
}

// RequiredRate is the runs needed per over for the rest of the chase.
func RequiredRate(inn Innings, totalOvers int) string {
	if inn.Target == nil {
		return "0.00"
	}
	need := *inn.Target - Total(inn.Deliveries)
	left := totalOvers*BallsPerOver - LegalBalls(inn.Deliveries)
	if need <= 0 {
		return "0.00"
	}
	return ratio(need, left, decimal.NewFromInt(BallsPerOver))
}

type BattingFigures struct {
	Runs       int    `json:"runs"`
	Balls      int    `json:"balls"`
	Fours      int    `json:"fours"`
	Sixes      int    `json:"sixes"`
	StrikeRate string `json:"strikeRate"`
}

type BowlingFigures struct {
	RunsConceded int    `json:"runsConceded"`
	Wickets      int    `json:"wickets"`
	LegalBalls   int    `json:"legalBalls"`
	Overs        string `json:"overs"`
	Economy      string `json:"economy"`
}

func (f *BattingFigures) add(d Delivery) {
	f.Runs += d.Runs
	if d.ExtraType != ExtraWide {
		f.Balls++
	}
	// Bye runs are not off the bat.
	if d.ExtraType == ExtraBye || d.ExtraType == ExtraLegBye {
		return
	}
	switch d.Runs {
	case 4:
		f.Fours++
	case 6:
		f.Sixes++
	}
}

func (f *BowlingFigures) add(d Delivery) {
	f.RunsConceded += d.Runs + d.ExtraRuns
	if d.IsWicket && d.WicketType.CreditsBowler() {
		f.Wickets++
	}
	if d.ExtraType.IsLegal() {
		f.LegalBalls++
	}
}

// BattingFor computes a player's batting figures. Wides are the striker's
// delivery but are not a ball faced.
func BattingFor(ds []Delivery, playerID string) BattingFigures {
	var f BattingFigures
	for _, d := range ds {
		if d.BatsmanID == playerID {
			f.add(d)
		}
	}
	f.StrikeRate = StrikeRate(f.Runs, f.Balls)
	return f
}

// BowlingFor computes a bowler's figures. Run outs are not credited.
func BowlingFor(ds []Delivery, playerID string) BowlingFigures {
	var f BowlingFigures
	for _, d := range ds {
		if d.BowlerID == playerID {
			f.add(d)
		}
	}
	f.Overs = FormatOvers(f.LegalBalls)
	f.Economy = Economy(f.RunsConceded, f.LegalBalls)
	return f
}

// PlayerStats is the accumulated record of one player.
type PlayerStats struct {
	PlayerID string         `json:"playerId"`
	Batting  BattingFigures `json:"batting"`
	Bowling  BowlingFigures `json:"bowling"`
}

// StatsFor accumulates figures per player over the deliveries. The result
// is in first-appearance order.
func StatsFor(ds []Delivery) []PlayerStats {
	type acc struct {
		bat  BattingFigures
		bowl BowlingFigures
	}
	var order []string
	byID := make(map[string]*acc)
	get := func(id string) *acc {
		a, ok := byID[id]
		if !ok {
			a = &acc{}
			byID[id] = a
			order = append(order, id)
		}
		return a
	}
	for _, d := range ds {
		get(d.BatsmanID).bat.add(d)
		get(d.BowlerID).bowl.add(d)
	}
	out := make([]PlayerStats, 0, len(order))
	for _, id := range order {
		a := byID[id]
		a.bat.StrikeRate = StrikeRate(a.bat.Runs, a.bat.Balls)
		a.bowl.Overs = FormatOvers(a.bowl.LegalBalls)
		a.bowl.Economy = Economy(a.bowl.RunsConceded, a.bowl.LegalBalls)
		out = append(out, PlayerStats{PlayerID: id, Batting: a.bat, Bowling: a.bowl})
	}
	return out
}

// Performer is a best-performer entry with resolved names.
type Performer struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	TeamName   string `json:"teamName"`
	Runs       int    `json:"runs,omitempty"`
	Balls      int    `json:"balls,omitempty"`
	Wickets    int    `json:"wickets,omitempty"`
	Conceded   int    `json:"runsConceded,omitempty"`
}

type Performers struct {
	BestBatsman *Performer `json:"bestBatsman,omitempty"`
	BestBowler  *Performer `json:"bestBowler,omitempty"`
}

// TournamentPerformers finds the best batsman (most runs, then fewest
// balls) and the best bowler (most wickets, then fewest runs conceded)
// across every recorded delivery. A full tie keeps the player seen first.
func TournamentPerformers(t Tournament) Performers {
	var all []Delivery
	for _, m := range t.Matches {
		for _, inn := range m.Innings {
			all = append(all, inn.Deliveries...)
		}
	}
	stats := StatsFor(all)
	batted := make(map[string]bool)
	bowled := make(map[string]bool)
	for _, d := range all {
		batted[d.BatsmanID] = true
		bowled[d.BowlerID] = true
	}

	resolve := func(id string) (string, string) {
		p, team, ok := FindPlayer(t.Teams, id)
		if !ok {
			return "Unknown", "Unknown"
		}
		return p.Name, team.Name
	}

	var res Performers

	var bat, bowl []PlayerStats
	for _, ps := range stats {
		if batted[ps.PlayerID] {
			bat = append(bat, ps)
		}
		if bowled[ps.PlayerID] {
			bowl = append(bowl, ps)
		}
	}

	sort.SliceStable(bat, func(i, j int) bool {
		if bat[i].Batting.Runs != bat[j].Batting.Runs {
			return bat[i].Batting.Runs > bat[j].Batting.Runs
		}
		return bat[i].Batting.Balls < bat[j].Batting.Balls
	})
	if len(bat) > 0 {
		b := bat[0]
		name, team := resolve(b.PlayerID)
		res.BestBatsman = &Performer{PlayerID: b.PlayerID, PlayerName: name, TeamName: team, Runs: b.Batting.Runs, Balls: b.Batting.Balls}
	}

	sort.SliceStable(bowl, func(i, j int) bool {
		if bowl[i].Bowling.Wickets != bowl[j].Bowling.Wickets {
			return bowl[i].Bowling.Wickets > bowl[j].Bowling.Wickets
		}
		return bowl[i].Bowling.RunsConceded < bowl[j].Bowling.RunsConceded
	})
	if len(bowl) > 0 {
		b := bowl[0]
		name, team := resolve(b.PlayerID)
		res.BestBowler = &Performer{PlayerID: b.PlayerID, PlayerName: name, TeamName: team, Wickets: b.Bowling.Wickets, Conceded: b.Bowling.RunsConceded}
	}
	return res
}

// Standing is one row of the points table.
type Standing struct {
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
	Played   int    `json:"played"`
	Won      int    `json:"won"`
	Lost     int    `json:"lost"`
	Tied     int    `json:"tied"`
	NoResult int    `json:"noResult"`
}

// Standings tallies completed matches per team, most wins first. Teams with
// equal wins keep their registration order. Live matches count as no result.
func Standings(t Tournament) []Standing {
	rows := make([]Standing, len(t.Teams))
	idx := make(map[string]int, len(t.Teams))
	for i, team := range t.Teams {
		rows[i] = Standing{TeamID: team.ID, TeamName: team.Name}
		idx[team.ID] = i
	}
	for _, m := range t.Matches {
		if m.Status == StatusUpcoming {
			continue
		}
		for _, id := range []string{m.Team1ID, m.Team2ID} {
			i, ok := idx[id]
			if !ok {
				continue
			}
			r := &rows[i]
			r.Played++
			switch {
			case m.Status != StatusCompleted:
				r.NoResult++
			case m.WinnerID == "":
				r.Tied++
			case m.WinnerID == id:
				r.Won++
			default:
				r.Lost++
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Won > rows[j].Won
	})
	return rows
}
