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
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/hashicorp/raft"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

var ErrConflict = errors.New("conflict detected")

// FSM implements the raft.FSM interface over the tournament store.
type FSM struct {
	store       *TournamentStore
	r           *Registry
	hm          *HubManager
	storage     *storage.Storage
	initialized atomic.Bool
	rm          *RaftManager

	nodeMap          sync.Map // map[string]*NodeMeta
	lastAppliedIndex atomic.Uint64
}

// NewFSM creates a new FSM.
func NewFSM(store *TournamentStore, r *Registry, hm *HubManager, s *storage.Storage) *FSM {
	f := &FSM{
		store:   store,
		r:       r,
		hm:      hm,
		storage: s,
	}
	if s != nil {
		if _, err := os.Stat(filepath.Join(s.Dir(), "initialized")); err == nil {
			f.initialized.Store(true)
		}
		f.loadNodes()
	}
	return f
}

// LastAppliedIndex returns the index of the last applied log entry.
func (f *FSM) LastAppliedIndex() uint64 {
	return f.lastAppliedIndex.Load()
}

func (f *FSM) loadNodes() {
	var nodes map[string]*NodeMeta
	if err := f.storage.ReadDataFile("nodes.json", &nodes); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("FSM Error: failed to read nodes.json: %v", err)
		}
		return
	}
	for k, v := range nodes {
		f.nodeMap.Store(k, v)
	}
}

func (f *FSM) saveNodes() {
	if f.storage == nil {
		return
	}
	nodes := make(map[string]*NodeMeta)
	f.nodeMap.Range(func(k, v any) bool {
		nodes[k.(string)] = v.(*NodeMeta)
		return true
	})
	if err := f.storage.SaveDataFile("nodes.json", nodes); err != nil {
		log.Printf("FSM Error: failed to save nodes.json: %v", err)
	}
}

// IsInitialized returns true if the node has joined a cluster.
func (f *FSM) IsInitialized() bool {
	return f.initialized.Load()
}

func (f *FSM) setInitialized() {
	if f.initialized.Swap(true) {
		return
	}
	if f.storage != nil {
		if err := f.storage.SaveDataFile("initialized", "true"); err != nil {
			log.Printf("FSM Error: failed to save initialized state: %v", err)
		}
	}
}

// Apply applies a Raft log entry. The response is an error, the action
// outcomes for APPLY_ACTION, or nil.
func (f *FSM) Apply(l *raft.Log) any {
	if len(l.Data) == 0 {
		return nil
	}
	var cmd RaftCommand
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		log.Printf("FSM Apply Error: failed to decode command: %v", err)
		return err
	}
	res := f.applyCommand(cmd, l.Index)
	f.lastAppliedIndex.Store(l.Index)
	return res
}

func (f *FSM) GetNodeCount() int {
	count := 0
	f.nodeMap.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (f *FSM) GetAllNodes() map[string]string {
	nodes := make(map[string]string)
	f.nodeMap.Range(func(key, value any) bool {
		if meta, ok := value.(*NodeMeta); ok {
			nodes[key.(string)] = meta.HttpAddr
		}
		return true
	})
	return nodes
}

func (f *FSM) GetNodeAddr(nodeID string) string {
	if meta := f.GetNodeMeta(nodeID); meta != nil {
		return meta.HttpAddr
	}
	return ""
}

func (f *FSM) GetNodeMeta(nodeID string) *NodeMeta {
	if val, ok := f.nodeMap.Load(nodeID); ok {
		if meta, ok := val.(*NodeMeta); ok {
			return meta
		}
	}
	return nil
}

func (f *FSM) applyCommand(cmd RaftCommand, index uint64) any {
	switch cmd.Type {
	case CmdSaveTournament:
		if cmd.TournamentData == nil {
			return fmt.Errorf("missing tournament data")
		}
		return f.applySaveTournament(cmd.ID, *cmd.TournamentData, index)
	case CmdDeleteTournament:
		return f.applyDeleteTournament(cmd.ID, index)
	case CmdApplyAction:
		if cmd.Action == nil {
			return fmt.Errorf("missing action payload")
		}
		outcomes, err := f.applyActions(cmd.Action.TournamentID, cmd.Action.Actions, index)
		if err != nil {
			return err
		}
		return outcomes
	case CmdSaveMatch:
		if cmd.MatchData == nil {
			return fmt.Errorf("missing match data")
		}
		return f.applySaveMatch(cmd.ID, *cmd.MatchData, index)
	case CmdNodeMeta:
		if cmd.NodeMeta == nil {
			return fmt.Errorf("missing node meta")
		}
		f.nodeMap.Store(cmd.NodeMeta.NodeID, cmd.NodeMeta)
		f.saveNodes()
		if f.rm != nil && (cmd.NodeMeta.NodeID != f.rm.NodeID || f.rm.Bootstrap) {
			f.setInitialized()
		}
		return nil
	case CmdNodeLeft:
		if cmd.NodeMeta == nil {
			return fmt.Errorf("missing node meta for leave")
		}
		f.nodeMap.Delete(cmd.NodeMeta.NodeID)
		f.saveNodes()
		return nil
	case CmdUpdateAccessPolicy:
		if cmd.PolicyData == nil {
			return fmt.Errorf("missing policy data")
		}
		return f.applyUpdateAccessPolicy(cmd.PolicyData)
	default:
		return fmt.Errorf("unknown command type: %s", cmd.Type)
	}
}

// loadForApply loads the tournament and reports whether the entry was
// already applied.
func (f *FSM) loadForApply(id string, index uint64) (*TournamentRecord, bool, error) {
	t, err := f.store.LoadTournament(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("%w: tournament %s", ErrNotFound, id)
		}
		return nil, false, fmt.Errorf("failed to load tournament %s: %w", id, err)
	}
	if t.ID != id {
		return nil, false, fmt.Errorf("data consistency error: loaded tournament ID %s does not match expected %s", t.ID, id)
	}
	if index > 0 && index <= t.LastRaftIndex {
		return t, true, nil
	}
	if t.IsDeleted() {
		return nil, false, fmt.Errorf("%w: tournament %s", ErrNotFound, id)
	}
	return t, false, nil
}

func (f *FSM) publish(t *TournamentRecord, matchIDs []string) {
	f.r.UpdateTournament(t)
	if f.hm == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		log.Printf("FSM Error: failed to marshal tournament %s for broadcast: %v", t.ID, err)
		return
	}
	f.hm.BroadcastToTournament(t.ID, data, matchIDs)
}

func (f *FSM) applyActions(id string, actions []json.RawMessage, index uint64) ([]ActionOutcome, error) {
	t, done, err := f.loadForApply(id, index)
	if err != nil {
		return nil, err
	}
	if done {
		// Replay of an applied entry: every action is a duplicate.
		var outcomes []ActionOutcome
		for _, raw := range actions {
			var a BaseAction
			json.Unmarshal(raw, &a)
			outcomes = append(outcomes, ActionOutcome{ActionID: a.ID})
		}
		return outcomes, nil
	}

	outcomes, err := ApplyActions(t, actions)
	if err != nil {
		return nil, err
	}
	if index > 0 {
		t.LastRaftIndex = index
	}
	if err := f.store.SaveTournamentInMemory(t, false); err != nil {
		return nil, err
	}
	f.publish(t, changedMatches(outcomes))
	return outcomes, nil
}

func (f *FSM) applySaveMatch(id string, data []byte, index uint64) error {
	t, done, err := f.loadForApply(id, index)
	if err != nil || done {
		return err
	}
	var m scoring.Match
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to unmarshal match data: %w", err)
	}
	if err := PutMatch(t, m); err != nil {
		return err
	}
	if index > 0 {
		t.LastRaftIndex = index
	}
	if err := f.store.SaveTournament(t); err != nil {
		return err
	}
	f.publish(t, []string{m.ID})
	return nil
}

func (f *FSM) applySaveTournament(id string, data []byte, index uint64) error {
	var t TournamentRecord
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("failed to unmarshal tournament data: %w", err)
	}
	if t.ID != id {
		return fmt.Errorf("tournament ID %s does not match command ID %s", t.ID, id)
	}
	t.normalize()

	if existing, err := f.store.LoadTournament(id); err == nil {
		if index > 0 && index <= existing.LastRaftIndex {
			return nil
		}
	}
	if index > 0 {
		t.LastRaftIndex = index
	}
	if err := f.store.SaveTournament(&t); err != nil {
		return err
	}
	f.publish(&t, nil)
	return nil
}

func (f *FSM) applyDeleteTournament(id string, index uint64) error {
	existing, err := f.store.LoadTournament(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if index > 0 && index <= existing.LastRaftIndex {
		return nil
	}
	if err := f.store.DeleteTournament(id); err != nil {
		return err
	}
	f.r.DeleteTournament(id)
	if f.hm != nil {
		data, _ := json.Marshal(&TournamentRecord{Status: StatusDeleted})
		f.hm.BroadcastToTournament(id, data, nil)
	}
	return nil
}

func (f *FSM) applyUpdateAccessPolicy(policy *UserAccessPolicy) error {
	if f.storage != nil {
		if err := f.storage.SaveDataFile("sys_access_policy", policy); err != nil {
			return fmt.Errorf("failed to save access policy: %w", err)
		}
	}
	f.r.UpdateAccessPolicy(policy)
	return nil
}

// FSMSnapshot represents a snapshot of the FSM state.
type FSMSnapshot struct {
	fsm *FSM
}

// Persist saves the snapshot to the given sink.
func (s *FSMSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := s.fsm.persist(sink); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

// Release releases the snapshot.
func (s *FSMSnapshot) Release() {}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	// Flush dirty state so the snapshot reads fresh files.
	if err := f.store.FlushAll(); err != nil {
		log.Printf("FSM Snapshot Error: flushing tournaments failed: %v", err)
		return nil, err
	}
	if f.storage != nil {
		state := map[string]any{
			"lastAppliedIndex": f.LastAppliedIndex(),
			"timestamp":        time.Now().UnixNano(),
		}
		if err := f.storage.SaveDataFile("fsm_state.json", state); err != nil {
			log.Printf("Warning: failed to save fsm_state.json: %v", err)
		}
	}
	return &FSMSnapshot{fsm: f}, nil
}

func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	if err := f.restore(rc); err != nil {
		return err
	}
	f.r.Rebuild()
	if f.storage != nil {
		var policy UserAccessPolicy
		if err := f.storage.ReadDataFile("sys_access_policy", &policy); err == nil {
			f.r.UpdateAccessPolicy(&policy)
		}
	}
	return nil
}

func (f *FSM) FlushAll() error {
	return f.store.FlushAll()
}
