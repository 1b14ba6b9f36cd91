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
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"
)

type snapshotManifest struct {
	NodeMap     map[string]*NodeMeta `json:"nodeMap"`
	Initialized bool                 `json:"initialized"`
	RaftIndex   uint64               `json:"raftIndex"`
	Policy      *UserAccessPolicy    `json:"policy,omitempty"`
}

// persist writes the FSM state as a gzipped tar: manifest.json followed by
// one tournaments/<id>.json entry per stored tournament.
func (f *FSM) persist(w io.Writer) error {
	if err := f.store.FlushAll(); err != nil {
		return fmt.Errorf("failed to flush tournaments: %w", err)
	}

	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	nodes := make(map[string]*NodeMeta)
	f.nodeMap.Range(func(key, value any) bool {
		nodes[key.(string)] = value.(*NodeMeta)
		return true
	})
	manifest := snapshotManifest{
		NodeMap:     nodes,
		Initialized: f.initialized.Load(),
		RaftIndex:   f.LastAppliedIndex(),
		Policy:      f.r.GetAccessPolicy(),
	}
	manifestBytes, _ := json.Marshal(manifest)
	if err := writeFileToTar(tw, "manifest.json", manifestBytes); err != nil {
		return err
	}

	ids, err := f.store.ListAllTournamentIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		data, err := f.store.LoadTournamentAsJSON(id)
		if err != nil {
			log.Printf("Snapshot Warning: failed to load tournament %s: %v", id, err)
			continue
		}
		name := path.Join(tournamentsDir, url.PathEscape(id)+".json")
		if err := writeFileToTar(tw, name, data); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func (f *FSM) restore(rc io.Reader) error {
	gz, err := gzip.NewReader(rc)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	processed := make(map[string]bool)
	shouldSkipRestore := false

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if header.Size > maxBodyBytes {
			return fmt.Errorf("snapshot entry %s too large: %d bytes", header.Name, header.Size)
		}

		if header.Name == "manifest.json" {
			var manifest snapshotManifest
			if err := json.NewDecoder(tr).Decode(&manifest); err != nil {
				return err
			}
			for k, v := range manifest.NodeMap {
				f.nodeMap.Store(k, v)
			}
			if manifest.Initialized {
				f.setInitialized()
			}
			if manifest.Policy != nil {
				f.applyUpdateAccessPolicy(manifest.Policy)
			}
			if f.localIndex() >= manifest.RaftIndex && manifest.RaftIndex > 0 && f.IsInitialized() {
				log.Printf("Smart Restore: Local state is at or past index %d. Skipping.", manifest.RaftIndex)
				shouldSkipRestore = true
			}
			continue
		}

		if shouldSkipRestore || !strings.HasPrefix(header.Name, tournamentsDir+"/") {
			continue
		}
		var t TournamentRecord
		if err := json.NewDecoder(tr).Decode(&t); err != nil {
			log.Printf("Restore Warning: failed to unmarshal %s: %v", header.Name, err)
			continue
		}
		t.normalize()
		if err := f.store.SaveTournament(&t); err != nil {
			return fmt.Errorf("restore tournament %s: %w", t.ID, err)
		}
		processed[t.ID] = true
	}

	f.saveNodes()
	if shouldSkipRestore {
		return nil
	}

	// Tournaments missing from the snapshot no longer exist.
	ids, err := f.store.ListAllTournamentIDs()
	if err != nil {
		log.Printf("Restore Cleanup Warning: failed to list tournaments: %v", err)
		return nil
	}
	for _, id := range ids {
		if !processed[id] {
			f.store.PurgeTournament(id)
		}
	}
	return nil
}

// localIndex returns the applied index recorded by the last local snapshot.
func (f *FSM) localIndex() uint64 {
	if f.storage == nil {
		return 0
	}
	var state struct {
		LastAppliedIndex uint64 `json:"lastAppliedIndex"`
	}
	if err := f.storage.ReadDataFile("fsm_state.json", &state); err != nil {
		return 0
	}
	return state.LastAppliedIndex
}

func writeFileToTar(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name: name,
		Size: int64(len(data)),
		Mode: 0644,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
