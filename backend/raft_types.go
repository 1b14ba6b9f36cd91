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
	"encoding/json"
)

// CommandType represents the type of operation to perform on the FSM.
type CommandType string

const (
	CmdSaveTournament     CommandType = "SAVE_TOURNAMENT"
	CmdDeleteTournament   CommandType = "DELETE_TOURNAMENT"
	CmdApplyAction        CommandType = "APPLY_ACTION"
	CmdSaveMatch          CommandType = "SAVE_MATCH"
	CmdNodeMeta           CommandType = "NODE_META"
	CmdNodeLeft           CommandType = "NODE_LEFT"
	CmdUpdateAccessPolicy CommandType = "UPDATE_ACCESS_POLICY"
)

// RaftCommand is a unified structure for all Raft log entries.
type RaftCommand struct {
	Type           CommandType       `json:"type"`
	ID             string            `json:"id,omitempty"`
	NodeMeta       *NodeMeta         `json:"nodeMeta,omitempty"`
	Action         *ActionPayload    `json:"action,omitempty"`
	TournamentData *json.RawMessage  `json:"tournamentData,omitempty"`
	MatchData      *json.RawMessage  `json:"matchData,omitempty"`
	PolicyData     *UserAccessPolicy `json:"policyData,omitempty"`
}

// UserAccessPolicy defines global access rules and quotas.
type UserAccessPolicy struct {
	DefaultPolicy         string                  `json:"defaultPolicy"` // "allow" or "deny"
	DefaultMaxTournaments int                     `json:"defaultMaxTournaments"`
	DefaultDenyMessage    string                  `json:"defaultDenyMessage"`
	Admins                []string                `json:"admins"`
	Users                 map[string]UserOverride `json:"users"`
}

// UserOverride defines specific access rules for a single user.
type UserOverride struct {
	Access         string `json:"access"` // "allow" or "deny"
	MaxTournaments int    `json:"maxTournaments"`
}

// NodeMeta contains metadata about a cluster node.
type NodeMeta struct {
	NodeID          string `json:"nodeId"`
	HttpAddr        string `json:"httpAddr"`
	AppVersion      string `json:"appVersion,omitempty"`
	ProtocolVersion int    `json:"protocolVersion,omitempty"`
	SchemaVersion   int    `json:"schemaVersion,omitempty"`
}

// ActionPayload contains details for CmdApplyAction.
type ActionPayload struct {
	TournamentID string            `json:"tournamentId"`
	Actions      []json.RawMessage `json:"actions"`
	UserID       string            `json:"userId"`
}
