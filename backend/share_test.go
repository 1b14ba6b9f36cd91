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

package backend

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

func sharedTestMatch(t *testing.T) SharePayload {
	t.Helper()
	tour := newTestTournament(testTournamentID)
	if _, err := ApplyActions(tour, wholeMatchActions(t, testMatchID)); err != nil {
		t.Fatal(err)
	}
	return SharePayload{Match: tour.Matches[0], Team1: lionsTeam(), Team2: tigersTeam()}
}

func TestShareRoundTrip(t *testing.T) {
	p := sharedTestMatch(t)
	p.Team1.Name = "Lions & Co / 100%"

	token, err := EncodeShare(p)
	if err != nil {
		t.Fatalf("EncodeShare failed: %v", err)
	}
	if strings.ContainsAny(token, "#?&") {
		t.Errorf("token is not URL-fragment safe: %q", token)
	}

	got, ok := DecodeShare(token)
	if !ok {
		t.Fatal("DecodeShare rejected its own token")
	}
	if got.Team1.Name != p.Team1.Name || got.Match.WinnerID != "tigers" {
		t.Errorf("decoded = %+v", got)
	}
	if len(got.Match.Innings) != 2 || len(got.Match.Innings[0].Deliveries) != 2 {
		t.Errorf("decoded innings = %+v", got.Match.Innings)
	}

	url := ShareURL("https://scores.example.com/", token)
	if !strings.HasPrefix(url, "https://scores.example.com/#share=") {
		t.Errorf("ShareURL = %q", url)
	}
	if _, ok := DecodeShare(url); !ok {
		t.Error("DecodeShare should accept a full share URL")
	}
}

// browserToken is a share link token as the web page builds it: the
// JSON.stringify output, percent-encoded, folded back to bytes and passed
// through btoa.
const browserToken = "" +
	"eyJtYXRjaCI6eyJpZCI6Im0xIiwidGVhbTFJZCI6ImEiLCJ0ZWFtMklkIjoiYiIsInRvdGFsT3Zl" +
	"cnMiOjIsInRvc3NXaW5uZXJJZCI6ImEiLCJ0b3NzQ2hvaWNlIjoiQmF0IiwiaW5uaW5ncyI6W3si" +
	"YmF0dGluZ1RlYW1JZCI6ImEiLCJib3dsaW5nVGVhbUlkIjoiYiIsImRlbGl2ZXJpZXMiOlt7ImJh" +
	"dHNtYW5JZCI6ImExIiwiYm93bGVySWQiOiJiMiIsInJ1bnMiOjQsImV4dHJhVHlwZSI6Ik5vbmUi" +
	"LCJleHRyYVJ1bnMiOjAsImlzV2lja2V0IjpmYWxzZSwid2lja2V0VHlwZSI6Ik5vbmUiLCJvdmVy" +
	"IjowLCJiYWxsIjoxfV0sImlzQ29tcGxldGVkIjpmYWxzZX1dLCJzdGF0dXMiOiJMaXZlIiwiY3Jl" +
	"YXRlZEF0IjoxNzYwMDAwMDAwMDAwLCJsaXZlU3RhdGUiOnsic3RyaWtlcklkIjoiYTEiLCJub25T" +
	"dHJpa2VySWQiOiJhMiIsImN1cnJlbnRCb3dsZXJJZCI6ImIyIn19LCJ0ZWFtMSI6eyJpZCI6ImEi" +
	"LCJuYW1lIjoiMTAwJSBMaW9ucyIsInBsYXllcnMiOlt7ImlkIjoiYTEiLCJuYW1lIjoiw4ltaWxl" +
	"Iiwicm9sZSI6IkJhdHNtYW4ifSx7ImlkIjoiYTIiLCJuYW1lIjoiWm/DqyIsInJvbGUiOiJCb3ds" +
	"ZXIifV19LCJ0ZWFtMiI6eyJpZCI6ImIiLCJuYW1lIjoiVGlnZXJzIiwicGxheWVycyI6W3siaWQi" +
	"OiJiMSIsIm5hbWUiOiJCaWxhbCIsInJvbGUiOiJBbGwtUm91bmRlciJ9LHsiaWQiOiJiMiIsIm5h" +
	"bWUiOiJDaGVuIiwicm9sZSI6IldpY2tldGtlZXBlciJ9XX19"

func TestDecodeBrowserToken(t *testing.T) {
	p, ok := DecodeShare("https://scores.example.com/#share=" + browserToken)
	if !ok {
		t.Fatal("DecodeShare rejected a browser token")
	}
	if p.Team1.Name != "100% Lions" || p.Team1.Players[0].Name != "Émile" || p.Team1.Players[1].Name != "Zoë" {
		t.Errorf("team1 = %+v", p.Team1)
	}
	if p.Match.ID != "m1" || p.Match.LiveState == nil || p.Match.LiveState.CurrentBowlerID != "b2" {
		t.Errorf("match = %+v", p.Match)
	}
	if sum := scoring.Summarize(p.Match.Innings[0]); sum.Runs != 4 || sum.LegalBalls != 1 {
		t.Errorf("summary = %+v", sum)
	}

	// Our own tokens read back the same way in the browser: atob, then
	// the bytes as UTF-8.
	token, err := EncodeShare(p)
	if err != nil {
		t.Fatalf("EncodeShare failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not standard base64: %v", err)
	}
	if !utf8.Valid(raw) || !json.Valid(raw) {
		t.Fatalf("token does not hold UTF-8 JSON: %q", raw)
	}
	var back SharePayload
	if err := json.Unmarshal(raw, &back); err != nil || back.Team1.Players[0].Name != "Émile" {
		t.Errorf("decoded = %+v, %v", back.Team1, err)
	}
}

func TestDecodeShareInvalid(t *testing.T) {
	p := sharedTestMatch(t)
	swapped := p
	swapped.Team1, swapped.Team2 = p.Team2, p.Team1
	swappedToken, _ := EncodeShare(swapped)

	badMatch := p
	badMatch.Match.TotalOvers = 0
	badToken, _ := EncodeShare(badMatch)

	tests := map[string]string{
		"Empty":        "",
		"NotBase64":    "%%%",
		"NotJSON":      base64.StdEncoding.EncodeToString([]byte("hello")),
		"Escaped":      base64.StdEncoding.EncodeToString([]byte("%7B%7D")),
		"SwappedTeams": swappedToken,
		"InvalidMatch": badToken,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, ok := DecodeShare(token); ok {
				t.Errorf("DecodeShare(%q) accepted", token)
			}
		})
	}

	// A scorecard can still be built from whatever a valid token holds.
	sc := scoring.NewScorecard(p.Match, []scoring.Team{p.Team1, p.Team2})
	if sc.Result != "Tigers won by 2 wickets" {
		t.Errorf("Result = %q", sc.Result)
	}
}
