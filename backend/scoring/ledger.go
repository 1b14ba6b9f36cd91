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
	"strconv"
)

// BallsPerOver is fixed; there are no eight-ball overs here.
const BallsPerOver = 6

// Total is the innings score: batted runs plus penalty extras.
func Total(ds []Delivery) int {
	total := 0
	for _, d := range ds {
		total += d.Runs + d.ExtraRuns
	}
	return total
}

func WicketCount(ds []Delivery) int {
	n := 0
	for _, d := range ds {
		if d.IsWicket {
			n++
		}
	}
	return n
}

// LegalBalls counts deliveries that advance the over. Byes and leg byes
// count; wides and no balls do not.
func LegalBalls(ds []Delivery) int {
	n := 0
	for _, d := range ds {
		if d.ExtraType.IsLegal() {
			n++
		}
	}
	return n
}

// FormatOvers renders a legal ball count in cricket notation: 7 balls is
// "1.1", not a decimal fraction.
func FormatOvers(legalBalls int) string {
	return strconv.Itoa(legalBalls/BallsPerOver) + "." + strconv.Itoa(legalBalls%BallsPerOver)
}

// Extras counts deliveries per extra type.
type Extras struct {
	Wides   int `json:"wides"`
	NoBalls int `json:"noBalls"`
	Byes    int `json:"byes"`
	LegByes int `json:"legByes"`
}

func ExtrasBreakdown(ds []Delivery) Extras {
	var e Extras
	for _, d := range ds {
		switch d.ExtraType {
		case ExtraWide:
			e.Wides++
		case ExtraNoBall:
			e.NoBalls++
		case ExtraBye:
			e.Byes++
		case ExtraLegBye:
			e.LegByes++
		}
	}
	return e
}

// TotalExtras sums only the penalty runs. Bye and leg-bye runs are carried
// in Runs by the recorder and are not counted here.
func TotalExtras(ds []Delivery) int {
	n := 0
	for _, d := range ds {
		n += d.ExtraRuns
	}
	return n
}

// OverDeliveries returns the deliveries bowled in the given over, extras included.
func OverDeliveries(ds []Delivery, over int) []Delivery {
	var out []Delivery
	for _, d := range ds {
		if d.Over == over {
			out = append(out, d)
		}
	}
	return out
}

// InningsSummary is the headline of an innings.
type InningsSummary struct {
	BattingTeamID string `json:"battingTeamId"`
	Runs          int    `json:"runs"`
	Wickets       int    `json:"wickets"`
	LegalBalls    int    `json:"legalBalls"`
	Overs         string `json:"overs"`
	Extras        int    `json:"extras"`
	Target        *int   `json:"target,omitempty"`
}

func Summarize(inn Innings) InningsSummary {
	legal := LegalBalls(inn.Deliveries)
	return InningsSummary{
		BattingTeamID: inn.BattingTeamID,
		Runs:          Total(inn.Deliveries),
		Wickets:       WicketCount(inn.Deliveries),
		LegalBalls:    legal,
		Overs:         FormatOvers(legal),
		Extras:        TotalExtras(inn.Deliveries),
		Target:        inn.Target,
	}
}
