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
	"context"
	"encoding/json"
	"fmt"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// Repository is the persistence boundary of the scoring engine.
type Repository interface {
	GetMatch(ctx context.Context, tournamentID, matchID string) (scoring.Match, error)
	SaveMatch(ctx context.Context, tournamentID string, m scoring.Match) error
	ListTeams(ctx context.Context, tournamentID string) ([]scoring.Team, error)
}

// The hub of a tournament owns its state, so reads and writes go through it
// rather than to the store behind it.
var _ Repository = (*HubManager)(nil)

func (hm *HubManager) loadTournament(ctx context.Context, id string) (*TournamentRecord, error) {
	data, err := hm.GetHub(id).Do(ctx, HubRequest{Type: ReqTypeHTTPLoad})
	if err != nil {
		return nil, err
	}
	var t TournamentRecord
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode tournament %s: %w", id, err)
	}
	return &t, nil
}

// GetMatch returns a copy of the match as the tournament's hub holds it.
func (hm *HubManager) GetMatch(ctx context.Context, tournamentID, matchID string) (scoring.Match, error) {
	t, err := hm.loadTournament(ctx, tournamentID)
	if err != nil {
		return scoring.Match{}, err
	}
	idx := t.Match(matchID)
	if idx < 0 {
		return scoring.Match{}, fmt.Errorf("%w: match %s", ErrNotFound, matchID)
	}
	return t.Matches[idx], nil
}

// SaveMatch hands the match to the tournament's hub, which validates it
// against the teams, inserts or replaces it and writes it through.
func (hm *HubManager) SaveMatch(ctx context.Context, tournamentID string, m scoring.Match) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = hm.GetHub(tournamentID).Do(ctx, HubRequest{Type: ReqTypeHTTPSaveMatch, Payload: payload})
	return err
}

// ListTeams returns the tournament's teams in registration order.
func (hm *HubManager) ListTeams(ctx context.Context, tournamentID string) ([]scoring.Team, error) {
	t, err := hm.loadTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return t.Teams, nil
}

// PutMatch inserts or replaces a validated match in the record.
func PutMatch(t *TournamentRecord, m scoring.Match) error {
	if err := scoring.ValidateMatch(m, t.Teams); err != nil {
		return err
	}
	if idx := t.Match(m.ID); idx >= 0 {
		t.Matches[idx] = m.Clone()
		return nil
	}
	if len(t.Matches) >= maxMatches {
		return fmt.Errorf("%w: too many matches (max %d)", ErrInvalidAction, maxMatches)
	}
	t.Matches = append(t.Matches, m.Clone())
	return nil
}
