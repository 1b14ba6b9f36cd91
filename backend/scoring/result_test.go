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
	"testing"
)

func inningsOf(bat, bowl string, total, wickets int) Innings {
	var ds []Delivery
	for total > 0 {
		r := min(total, 6)
		ds = append(ds, ball("x", "y", r, ExtraNone, WicketNone))
		total -= r
	}
	for i := 0; i < wickets; i++ {
		ds = append(ds, ball("x", "y", 0, ExtraNone, WicketBowled))
	}
	return Innings{BattingTeamID: bat, BowlingTeamID: bowl, Deliveries: ds}
}

func TestResult(t *testing.T) {
	lions, tigers := testTeams()
	teams := []Team{lions, tigers}

	for _, tc := range []struct {
		name string
		m    Match
		want string
	}{
		{
			name: "upcoming",
			m:    Match{Status: StatusUpcoming},
			want: "Upcoming",
		},
		{
			name: "live",
			m:    Match{Status: StatusLive},
			want: "In Progress",
		},
		{
			name: "tie",
			m:    Match{Status: StatusCompleted},
			want: "Match Tied",
		},
		{
			name: "defended total",
			m: Match{Status: StatusCompleted, WinnerID: "lions", Innings: []Innings{
				inningsOf("lions", "tigers", 150, 3),
				inningsOf("tigers", "lions", 140, 2),
			}},
			want: "Lions won by 10 runs",
		},
		{
			name: "won by one run",
			m: Match{Status: StatusCompleted, WinnerID: "lions", Innings: []Innings{
				inningsOf("lions", "tigers", 20, 0),
				inningsOf("tigers", "lions", 19, 1),
			}},
			want: "Lions won by 1 run",
		},
		{
			name: "chased with one wicket left",
			m: Match{Status: StatusCompleted, WinnerID: "tigers", Innings: []Innings{
				inningsOf("lions", "tigers", 20, 0),
				inningsOf("tigers", "lions", 21, 1),
			}},
			want: "Tigers won by 1 wicket",
		},
		{
			name: "chasing side no longer registered",
			m: Match{Status: StatusCompleted, WinnerID: "lions", Innings: []Innings{
				inningsOf("tigers", "bears", 20, 0),
				inningsOf("bears", "tigers", 21, 4),
			}},
			want: "Lions won by 6 wickets",
		},
		{
			name: "winner unknown",
			m:    Match{Status: StatusCompleted, WinnerID: "bears"},
			want: "Match Ended",
		},
		{
			name: "single innings",
			m:    Match{Status: StatusCompleted, WinnerID: "tigers", Innings: []Innings{inningsOf("lions", "tigers", 5, 2)}},
			want: "Tigers won",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Result(tc.m, teams); got != tc.want {
				t.Errorf("Result = %q, want %q", got, tc.want)
			}
		})
	}
}
