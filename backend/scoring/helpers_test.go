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

func testTeams() (Team, Team) {
	lions := Team{ID: "lions", Name: "Lions", Players: []Player{
		{ID: "l1", Name: "Asha", Role: RoleBatsman},
		{ID: "l2", Name: "Bilal", Role: RoleAllRounder},
		{ID: "l3", Name: "Chen", Role: RoleBowler},
	}}
	tigers := Team{ID: "tigers", Name: "Tigers", Players: []Player{
		{ID: "t1", Name: "Dev", Role: RoleBatsman},
		{ID: "t2", Name: "Emil", Role: RoleWicketkeeper},
		{ID: "t3", Name: "Farah", Role: RoleBowler},
	}}
	return lions, tigers
}

// startSession opens a match with the Lions batting, Asha on strike,
// Bilal at the other end and Farah bowling.
func startSession(t *testing.T, overs int, rules Rules) Session {
	t.Helper()
	lions, tigers := testTeams()
	m, err := NewMatch("m1", lions, tigers, overs, "lions", TossBat, 1000)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	s, err := NewSession(m, lions, tigers, rules)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s, err = s.SelectBatsmen("l1", "l2"); err != nil {
		t.Fatalf("SelectBatsmen: %v", err)
	}
	if s, err = s.SelectBowler("t3"); err != nil {
		t.Fatalf("SelectBowler: %v", err)
	}
	return s
}

func record(t *testing.T, s Session, b Ball) (Session, Event) {
	t.Helper()
	next, ev, err := s.RecordBall(b)
	if err != nil {
		t.Fatalf("RecordBall(%+v): %v", b, err)
	}
	return next, ev
}

func runs(n int) Ball { return Ball{Runs: n} }

func out(w WicketType) Ball { return Ball{IsWicket: true, WicketType: w} }

func extra(e ExtraType, n int) Ball { return Ball{Runs: n, Extra: e} }

func dots(t *testing.T, s Session, n int) Session {
	t.Helper()
	for i := 0; i < n; i++ {
		s, _ = record(t, s, runs(0))
	}
	return s
}
