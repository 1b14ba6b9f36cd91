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
	"errors"
	"time"
)

const (
	CurrentSchemaVersion   = 1
	CurrentProtocolVersion = 1
	CurrentAppVersion      = "0.1.0"
)

// Tournament record status
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Permission levels
const (
	PermissionNone  = "none"
	PermissionRead  = "read"
	PermissionWrite = "write"
	PermissionAdmin = "admin"
)

// Action types
const (
	ActionTournamentUpdate      = "TOURNAMENT_UPDATE"
	ActionTeamSave              = "TEAM_SAVE"
	ActionTeamDelete            = "TEAM_DELETE"
	ActionMatchStart            = "MATCH_START"
	ActionMatchDelete           = "MATCH_DELETE"
	ActionSelectBatsmen         = "SELECT_BATSMEN"
	ActionSelectIncomingBatsman = "SELECT_INCOMING_BATSMAN"
	ActionSelectBowler          = "SELECT_BOWLER"
	ActionSwapStrike            = "SWAP_STRIKE"
	ActionRecordBall            = "RECORD_BALL"
	ActionUndoBall              = "UNDO_BALL"
)

const (
	maxActionsPerBatch = 100
	maxRecentActionIDs = 256
	// maxActionScan bounds the idempotency scan of recent action ids.
	maxActionScan = 100

	maxNameLen   = 100
	// Logos are image data URLs.
	maxLogoLen   = 512 << 10
	maxPlayers   = 50
	maxTeams     = 64
	maxMatches   = 1000
	maxOvers     = 50
	maxBodyBytes = 32 << 20

	hubIdleTimeout     = 5 * time.Minute
	flushInterval      = 30 * time.Second
	purgeInterval      = 12 * time.Hour
	tombstoneRetention = 30 * 24 * time.Hour
	// hubRequestTimeout bounds how long an HTTP request waits on a hub.
	hubRequestTimeout = 10 * time.Second
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidAction = errors.New("invalid action")
	ErrFormat        = errors.New("invalid tournament file")
	ErrForbidden     = errors.New("forbidden")
	ErrHubBusy       = errors.New("hub busy")
)
