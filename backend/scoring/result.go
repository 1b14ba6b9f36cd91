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

// defaultSquad is assumed when the chasing team is no longer registered.
const defaultSquad = 11

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// Result is the one-line outcome of a match, e.g. "Lions won by 12 runs".
func Result(m Match, teams []Team) string {
	switch m.Status {
	case StatusUpcoming:
		return "Upcoming"
	case StatusCompleted:
	default:
		return "In Progress"
	}
	if m.WinnerID == "" {
		return "Match Tied"
	}
	winner, ok := FindTeam(teams, m.WinnerID)
	if !ok {
		return "Match Ended"
	}
	if len(m.Innings) < 2 {
		return winner.Name + " won"
	}
	first, second := m.Innings[0], m.Innings[1]
	if m.WinnerID == first.BattingTeamID {
		margin := Total(first.Deliveries) - Total(second.Deliveries)
		return winner.Name + " won by " + plural(margin, "run")
	}
	players := defaultSquad
	if t, ok := FindTeam(teams, second.BattingTeamID); ok && len(t.Players) > 0 {
		players = len(t.Players)
	}
	margin := players - WicketCount(second.Deliveries) - 1
	return winner.Name + " won by " + plural(margin, "wicket")
}
