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

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// SharePayload is the content of a share link: a match with both squads,
// enough to render it without access to the tournament.
type SharePayload struct {
	Match scoring.Match `json:"match"`
	Team1 scoring.Team  `json:"team1"`
	Team2 scoring.Team  `json:"team2"`
}

const shareFragment = "#share="

// EncodeShare turns a match into a share token: the UTF-8 JSON in
// standard base64, as a browser page reads it with atob.
func EncodeShare(p SharePayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// ShareURL appends the token to a page URL as a fragment.
func ShareURL(base, token string) string {
	return strings.TrimSuffix(base, "/") + "/" + shareFragment + token
}

// DecodeShare parses a share token, or a URL carrying one. ok is false
// for anything that is not a valid match with its two squads.
func DecodeShare(token string) (p SharePayload, ok bool) {
	if _, frag, found := strings.Cut(token, shareFragment); found {
		token = frag
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return SharePayload{}, false
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return SharePayload{}, false
	}
	if p.Team1.ID != p.Match.Team1ID || p.Team2.ID != p.Match.Team2ID {
		return SharePayload{}, false
	}
	if err := scoring.ValidateMatch(p.Match, []scoring.Team{p.Team1, p.Team2}); err != nil {
		return SharePayload{}, false
	}
	return p, true
}
