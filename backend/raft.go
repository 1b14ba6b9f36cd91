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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage/crypto"
	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

var ErrNotLeader = errors.New("not leader")

type RaftManager struct {
	Raft                  *raft.Raft
	FSM                   *FSM
	DataDir               string
	Bind                  string // "host:port" for Raft transport
	Advertise             string // "host:port" for advertising to other nodes
	ClusterAdvertise      string // "host:port" of the cluster API as seen by other nodes
	ClusterAddr           string // "host:port" for the internal cluster API
	NodeID                string
	Secret                string
	Bootstrap             bool
	UseProductionTimeouts bool

	// MasterKey, when set, encrypts the snapshots on disk.
	MasterKey crypto.MasterKey

	shutdownCh     chan struct{}
	shutdownOnce   sync.Once
	internalServer *http.Server
	httpClient     *http.Client
	AuthMiddleware func(http.Handler) http.Handler
	AppHandler     http.Handler

	logStore    *raftboltdb.BoltStore
	stableStore *raftboltdb.BoltStore
	transport   *raft.NetworkTransport

	LogOutput io.Writer // Optional: Redirect Raft logs
}

func NewRaftManager(dataDir, bind, advertise, clusterAdvertise, clusterAddr, secret string, fsm *FSM) *RaftManager {
	rm := &RaftManager{
		DataDir:          dataDir,
		Bind:             bind,
		Advertise:        advertise,
		ClusterAdvertise: clusterAdvertise,
		ClusterAddr:      clusterAddr,
		Secret:           secret,
		FSM:              fsm,
		shutdownCh:       make(chan struct{}),
		LogOutput:        os.Stderr,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
	}
	if fsm != nil {
		fsm.rm = rm
	}
	return rm
}

// loadOrCreateNodeID keeps the node id stable across restarts.
func (rm *RaftManager) loadOrCreateNodeID() error {
	if rm.NodeID != "" {
		return nil
	}
	idPath := filepath.Join(rm.DataDir, "node-id")
	if data, err := os.ReadFile(idPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			rm.NodeID = id
			return nil
		}
	}
	rm.NodeID = uuid.NewString()
	return os.WriteFile(idPath, []byte(rm.NodeID), 0600)
}

func (rm *RaftManager) Start(bootstrap bool) error {
	rm.Bootstrap = bootstrap
	if err := os.MkdirAll(rm.DataDir, 0755); err != nil {
		return err
	}
	if err := rm.loadOrCreateNodeID(); err != nil {
		return fmt.Errorf("failed to load node id: %v", err)
	}
	log.Printf("NodeID: %s", rm.NodeID)

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(rm.NodeID)
	if rm.UseProductionTimeouts {
		config.HeartbeatTimeout = 5 * time.Second
		config.ElectionTimeout = 20 * time.Second
		config.LeaderLeaseTimeout = 5 * time.Second
	} else {
		// Faster timeouts for tests
		config.HeartbeatTimeout = 1000 * time.Millisecond
		config.ElectionTimeout = 1000 * time.Millisecond
		config.LeaderLeaseTimeout = 500 * time.Millisecond
	}
	config.CommitTimeout = 500 * time.Millisecond
	config.SnapshotInterval = 120 * time.Second
	config.SnapshotThreshold = 20480
	config.LogLevel = "INFO"
	config.MaxAppendEntries = 200
	if rm.LogOutput != nil {
		config.LogOutput = rm.LogOutput
	}

	var advertise net.Addr
	if rm.Advertise != "" {
		addr, err := net.ResolveTCPAddr("tcp", rm.Advertise)
		if err != nil {
			return fmt.Errorf("invalid raft advertise address %q: %v", rm.Advertise, err)
		}
		advertise = addr
	}
	transport, err := raft.NewTCPTransport(rm.Bind, advertise, 3, 10*time.Second, rm.LogOutput)
	if err != nil {
		return err
	}
	rm.transport = transport

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(rm.DataDir, "raft-log.bolt"))
	if err != nil {
		return err
	}
	rm.logStore = logStore // Assign immediately for cleanup
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(rm.DataDir, "raft-stable.bolt"))
	if err != nil {
		return err
	}
	rm.stableStore = stableStore

	fileSnapshots, err := raft.NewFileSnapshotStore(rm.DataDir, 1, rm.LogOutput)
	if err != nil {
		return err
	}
	var snapshotKey crypto.EncryptionKey
	if rm.MasterKey != nil {
		if snapshotKey, err = loadSnapshotKey(rm.MasterKey, rm.DataDir); err != nil {
			return err
		}
	}
	snapshotStore := NewEncryptedSnapshotStore(fileSnapshots, snapshotKey)

	r, err := raft.NewRaft(config, rm.FSM, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return err
	}
	rm.Raft = r

	if bootstrap {
		log.Printf("Bootstrapping Raft cluster with NodeID: %s", rm.NodeID)
		configuration := raft.Configuration{
			Servers: []raft.Server{{ID: config.LocalID, Address: transport.LocalAddr()}},
		}
		if err := r.BootstrapCluster(configuration).Error(); err != nil {
			log.Printf("Bootstrap error (might be already bootstrapped): %v", err)
		}
		go rm.ingestLocalData()
	}

	if rm.ClusterAddr != "" {
		if err := rm.startClusterServer(); err != nil {
			return err
		}
	}

	// Store own address locally until the log carries it.
	rm.FSM.nodeMap.Store(rm.NodeID, rm.selfMeta())
	go rm.monitorConfiguration()
	return nil
}

func (rm *RaftManager) selfMeta() *NodeMeta {
	return &NodeMeta{
		NodeID:          rm.NodeID,
		HttpAddr:        rm.ClusterAdvertise,
		AppVersion:      CurrentAppVersion,
		ProtocolVersion: CurrentProtocolVersion,
		SchemaVersion:   CurrentSchemaVersion,
	}
}

// ingestLocalData waits for leadership, then proposes the node metadata
// and every tournament already on disk, so a standalone data directory can
// seed a new cluster.
func (rm *RaftManager) ingestLocalData() {
	for rm.Raft.State() != raft.Leader {
		select {
		case <-rm.shutdownCh:
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	if _, err := rm.Propose(RaftCommand{Type: CmdNodeMeta, NodeMeta: rm.selfMeta()}); err != nil {
		log.Printf("Failed to propose bootstrap metadata: %v", err)
	}

	log.Printf("Ingesting existing data into Raft log...")
	store := rm.FSM.store
	for t, err := range store.ListAllTournaments() {
		if err != nil {
			log.Printf("Failed to list tournaments for ingestion: %v", err)
			break
		}
		if t.LastRaftIndex > 0 {
			continue
		}
		data, _ := json.Marshal(t)
		raw := json.RawMessage(data)
		if _, err := rm.Propose(RaftCommand{Type: CmdSaveTournament, ID: t.ID, TournamentData: &raw}); err != nil {
			log.Printf("Failed to ingest tournament %s: %v", t.ID, err)
		}
	}
	log.Printf("Ingestion complete.")
}

// RegisterHandlers adds the cluster API to a mux.
func (rm *RaftManager) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cluster/status", rm.handleStatus)
	mux.HandleFunc("POST /api/cluster/join", rm.handleJoin)
	mux.HandleFunc("POST /api/cluster/remove", rm.handleRemove)
	mux.HandleFunc("POST /api/cluster/action", rm.handleAction)
}

func (rm *RaftManager) startClusterServer() error {
	mux := http.NewServeMux()
	rm.RegisterHandlers(mux)
	if rm.AppHandler != nil {
		mux.Handle("/", rm.AppHandler)
	}
	var handler http.Handler = mux
	if rm.AuthMiddleware != nil {
		handler = rm.AuthMiddleware(mux)
	}

	ln, err := net.Listen("tcp", rm.ClusterAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on cluster addr %s: %v", rm.ClusterAddr, err)
	}
	// Update ClusterAdvertise if we bound to a random port
	if strings.HasSuffix(rm.ClusterAdvertise, ":0") || rm.ClusterAdvertise == "" {
		_, port, _ := net.SplitHostPort(ln.Addr().String())
		host, _, _ := net.SplitHostPort(rm.ClusterAdvertise)
		if host == "" {
			host = "127.0.0.1"
		}
		rm.ClusterAdvertise = net.JoinHostPort(host, port)
	}

	rm.internalServer = &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("Starting Internal Cluster API on %s...", ln.Addr())
		if err := rm.internalServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("Internal Server Error: %v", err)
		}
	}()
	return nil
}

// GetHTTPClient returns the reusable HTTP client for internal cluster communication.
func (rm *RaftManager) GetHTTPClient() *http.Client {
	return rm.httpClient
}

// WaitForSync blocks until the Raft FSM has applied all entries currently in the log.
func (rm *RaftManager) WaitForSync(timeout time.Duration) error {
	if rm.Raft == nil {
		return nil
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return fmt.Errorf("timeout waiting for Raft sync (applied: %d, last: %d)", rm.Raft.AppliedIndex(), rm.Raft.LastIndex())
		case <-ticker.C:
			if rm.Raft.AppliedIndex() >= rm.Raft.LastIndex() {
				return nil
			}
		}
	}
}

// Propose replicates a command and returns what the FSM returned for it.
func (rm *RaftManager) Propose(cmd RaftCommand) (any, error) {
	if rm.Raft.State() != raft.Leader {
		return nil, ErrNotLeader
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	f := rm.Raft.Apply(data, 5*time.Second)
	if err := f.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return nil, ErrNotLeader
		}
		return nil, err
	}
	resp := f.Response()
	if err, ok := resp.(error); ok {
		return nil, err
	}
	return resp, nil
}

// Join adds a new node to the cluster.
func (rm *RaftManager) Join(meta NodeMeta, raftAddr string, nonVoter bool) error {
	if rm.Raft.State() != raft.Leader {
		return ErrNotLeader
	}
	log.Printf("Received join request for remote node %s at Raft:%s, HTTP:%s (nonVoter: %v)", meta.NodeID, raftAddr, meta.HttpAddr, nonVoter)

	if _, err := rm.Propose(RaftCommand{Type: CmdNodeMeta, NodeMeta: &meta}); err != nil {
		return fmt.Errorf("failed to store node metadata: %v", err)
	}

	var f raft.IndexFuture
	if nonVoter {
		f = rm.Raft.AddNonvoter(raft.ServerID(meta.NodeID), raft.ServerAddress(raftAddr), 0, 0)
	} else {
		f = rm.Raft.AddVoter(raft.ServerID(meta.NodeID), raft.ServerAddress(raftAddr), 0, 0)
	}
	if err := f.Error(); err != nil {
		return err
	}
	log.Printf("Node %s joined successfully", meta.NodeID)
	return nil
}

// Leave removes a node from the cluster.
func (rm *RaftManager) Leave(nodeID string) error {
	if rm.Raft.State() != raft.Leader {
		return ErrNotLeader
	}
	log.Printf("Received leave request for node %s", nodeID)

	if err := rm.Raft.RemoveServer(raft.ServerID(nodeID), 0, 0).Error(); err != nil {
		return err
	}
	if _, err := rm.Propose(RaftCommand{Type: CmdNodeLeft, NodeMeta: &NodeMeta{NodeID: nodeID}}); err != nil {
		log.Printf("Warning: Failed to broadcast node removal: %v", err)
	}
	log.Printf("Node %s removed successfully", nodeID)
	return nil
}

// checkClusterRequest rejects forwarding loops and requests without the
// cluster secret. It reports whether the request may proceed.
func (rm *RaftManager) checkClusterRequest(w http.ResponseWriter, r *http.Request) bool {
	if forwarded := r.Header.Get("X-Raft-Forwarded"); forwarded != "" {
		for _, id := range strings.Split(forwarded, ",") {
			if strings.TrimSpace(id) == rm.NodeID {
				http.Error(w, "Forwarding loop detected", http.StatusLoopDetected)
				return false
			}
		}
	}
	secret := r.Header.Get("X-Raft-Secret")
	if rm.Secret == "" || secret != rm.Secret {
		http.Error(w, "Forbidden: Invalid Cluster Secret", http.StatusForbidden)
		return false
	}
	return true
}

// markForwarded appends this node to the forwarding chain and sets the
// cluster secret.
func (rm *RaftManager) markForwarded(req *http.Request) {
	forwarded := req.Header.Get("X-Raft-Forwarded")
	if forwarded != "" {
		forwarded += "," + rm.NodeID
	} else {
		forwarded = rm.NodeID
	}
	req.Header.Set("X-Raft-Forwarded", forwarded)
	if rm.Secret != "" {
		req.Header.Set("X-Raft-Secret", rm.Secret)
	}
}

// clusterURL turns a node address into a URL for path.
func clusterURL(addr, path string) string {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimSuffix(addr, "/") + path
}

func (rm *RaftManager) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !rm.checkClusterRequest(w, r) {
		return
	}

	_, leaderID := rm.Raft.LeaderWithID()
	raftAddr := rm.Advertise
	if raftAddr == "" {
		raftAddr = rm.Bind
	}
	status := map[string]any{
		"nodeId":          rm.NodeID,
		"state":           rm.Raft.State().String(),
		"leaderId":        string(leaderID),
		"leaderAddr":      rm.GetLeaderHTTPAddr(),
		"raftAddr":        raftAddr,
		"appVersion":      CurrentAppVersion,
		"protocolVersion": CurrentProtocolVersion,
		"schemaVersion":   CurrentSchemaVersion,
	}

	configFuture := rm.Raft.GetConfiguration()
	if err := configFuture.Error(); err == nil {
		var nodes []map[string]any
		for _, s := range configFuture.Configuration().Servers {
			node := map[string]any{
				"id":       string(s.ID),
				"raftAddr": string(s.Address),
				"httpAddr": rm.FSM.GetNodeAddr(string(s.ID)),
				"suffrage": s.Suffrage.String(),
			}
			if meta := rm.FSM.GetNodeMeta(string(s.ID)); meta != nil {
				node["appVersion"] = meta.AppVersion
				node["protocolVersion"] = meta.ProtocolVersion
				node["schemaVersion"] = meta.SchemaVersion
			}
			nodes = append(nodes, node)
		}
		status["nodes"] = nodes
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

type joinRequest struct {
	NodeID          string `json:"nodeId"`
	RaftAddr        string `json:"raftAddr"`
	HttpAddr        string `json:"httpAddr"`
	NonVoter        bool   `json:"nonVoter"`
	AppVersion      string `json:"appVersion"`
	ProtocolVersion int    `json:"protocolVersion"`
	SchemaVersion   int    `json:"schemaVersion"`
}

func (rm *RaftManager) handleJoin(w http.ResponseWriter, r *http.Request) {
	if !rm.checkClusterRequest(w, r) {
		return
	}
	if rm.Raft.State() != raft.Leader {
		rm.forwardRequestToLeader(w, r)
		return
	}

	var data joinRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&data); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if data.HttpAddr == "" {
		http.Error(w, "Missing required field: httpAddr", http.StatusBadRequest)
		return
	}

	if data.NodeID == "" {
		status, err := rm.discoverNode(data.HttpAddr)
		if err != nil {
			log.Printf("Discovery failed for %s: %v", data.HttpAddr, err)
			http.Error(w, fmt.Sprintf("Discovery failed: %v", err), http.StatusBadGateway)
			return
		}
		data.NodeID, _ = status["nodeId"].(string)
		data.RaftAddr, _ = status["raftAddr"].(string)
		data.AppVersion, _ = status["appVersion"].(string)
		if v, ok := status["protocolVersion"].(float64); ok {
			data.ProtocolVersion = int(v)
		}
		if v, ok := status["schemaVersion"].(float64); ok {
			data.SchemaVersion = int(v)
		}
		if data.NodeID == "" || data.RaftAddr == "" {
			http.Error(w, "Discovery failed: incomplete status response", http.StatusBadGateway)
			return
		}
	}

	if _, _, err := net.SplitHostPort(data.RaftAddr); err != nil {
		http.Error(w, "Invalid RaftAddr: must be host:port", http.StatusBadRequest)
		return
	}
	if _, _, err := net.SplitHostPort(data.HttpAddr); err != nil {
		u, pErr := url.Parse(data.HttpAddr)
		if pErr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			http.Error(w, "Invalid HttpAddr: must be host:port or valid URL", http.StatusBadRequest)
			return
		}
	}
	if data.ProtocolVersion > CurrentProtocolVersion {
		http.Error(w, fmt.Sprintf("Unsupported protocol version %d", data.ProtocolVersion), http.StatusConflict)
		return
	}

	meta := NodeMeta{
		NodeID:          data.NodeID,
		HttpAddr:        data.HttpAddr,
		AppVersion:      data.AppVersion,
		ProtocolVersion: data.ProtocolVersion,
		SchemaVersion:   data.SchemaVersion,
	}
	if err := rm.Join(meta, data.RaftAddr, data.NonVoter); err != nil {
		http.Error(w, fmt.Sprintf("Failed to join: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Node %s joined cluster", data.NodeID)
}

func (rm *RaftManager) discoverNode(targetAddr string) (map[string]any, error) {
	u := clusterURL(targetAddr, "/api/cluster/status")
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Raft-Secret", rm.Secret)

	resp, err := rm.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discoverNode(%q): %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("node returned status %d: %s", resp.StatusCode, string(body))
	}
	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return status, nil
}

func (rm *RaftManager) handleRemove(w http.ResponseWriter, r *http.Request) {
	if !rm.checkClusterRequest(w, r) {
		return
	}
	if rm.Raft.State() != raft.Leader {
		rm.forwardRequestToLeader(w, r)
		return
	}

	var data struct {
		NodeID string `json:"nodeId"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&data); err != nil || data.NodeID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := rm.Leave(data.NodeID); err != nil {
		http.Error(w, fmt.Sprintf("Failed to remove node: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Node %s removed from cluster", data.NodeID)
}

func (rm *RaftManager) forwardRequestToLeader(w http.ResponseWriter, r *http.Request) {
	leaderAddr := rm.GetLeaderHTTPAddr()
	if leaderAddr == "" {
		http.Error(w, "No leader found", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}
	req, err := http.NewRequest(r.Method, clusterURL(leaderAddr, r.URL.Path), bytes.NewReader(body))
	if err != nil {
		http.Error(w, "Failed to create forward request", http.StatusInternalServerError)
		return
	}
	for k, v := range r.Header {
		req.Header[k] = v
	}
	req.Host = r.Host
	rm.markForwarded(req)

	resp, err := rm.httpClient.Do(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to forward request: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// handleAction applies an action batch forwarded by a follower.
func (rm *RaftManager) handleAction(w http.ResponseWriter, r *http.Request) {
	if !rm.checkClusterRequest(w, r) {
		return
	}

	var req ActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
		return
	}
	if !isValidUUID(req.TournamentID) {
		http.Error(w, "Bad Request: tournamentId is missing", http.StatusBadRequest)
		return
	}

	hub := rm.FSM.hm.GetHub(req.TournamentID)
	resp, err := hub.Do(r.Context(), HubRequest{
		Type:    ReqTypeHTTPAction,
		UserId:  getUserID(r),
		Headers: r.Header,
		Actions: req,
	})
	if err != nil {
		log.Printf("Error processing forwarded HTTP action: %v", err)
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// GetLeaderHTTPAddr returns the cluster API address of the current leader.
func (rm *RaftManager) GetLeaderHTTPAddr() string {
	_, leaderID := rm.Raft.LeaderWithID()
	if leaderID == "" {
		return ""
	}
	return rm.FSM.GetNodeAddr(string(leaderID))
}

// Shutdown gracefully shuts down the Raft node.
func (rm *RaftManager) Shutdown() error {
	rm.shutdownOnce.Do(func() {
		close(rm.shutdownCh)
	})
	if rm.internalServer != nil {
		rm.internalServer.Close()
	}
	if rm.Raft == nil {
		rm.closeStores()
		return nil
	}

	if rm.Raft.State() == raft.Leader {
		log.Printf("Attempting leadership transfer before shutdown...")
		f := rm.Raft.LeadershipTransfer()
		done := make(chan error, 1)
		go func() { done <- f.Error() }()
		select {
		case err := <-done:
			if err != nil {
				log.Printf("Leadership transfer failed (continuing): %v", err)
			} else {
				log.Printf("Leadership transfer successful.")
			}
		case <-time.After(5 * time.Second):
			log.Printf("Leadership transfer timed out (continuing).")
		}
	}

	raftErr := rm.Raft.Shutdown().Error()
	rm.closeStores()
	return raftErr
}

func (rm *RaftManager) closeStores() {
	if rm.transport != nil {
		rm.transport.Close()
		rm.transport = nil
	}
	if rm.logStore != nil {
		rm.logStore.Close()
		rm.logStore = nil
	}
	if rm.stableStore != nil {
		rm.stableStore.Close()
		rm.stableStore = nil
	}
}

// monitorConfiguration keeps this node's metadata current. The leader
// republishes its own address; a follower re-announces itself to the
// leader until it is registered.
func (rm *RaftManager) monitorConfiguration() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-rm.shutdownCh:
			return
		case <-ticker.C:
		}

		_, leaderID := rm.Raft.LeaderWithID()
		if leaderID == raft.ServerID(rm.NodeID) {
			if meta := rm.FSM.GetNodeMeta(rm.NodeID); meta == nil || meta.HttpAddr != rm.ClusterAdvertise || meta.AppVersion != CurrentAppVersion {
				log.Printf("[AutoConfig] Updating own metadata (HTTP address %q)", rm.ClusterAdvertise)
				if _, err := rm.Propose(RaftCommand{Type: CmdNodeMeta, NodeMeta: rm.selfMeta()}); err != nil {
					log.Printf("[AutoConfig] Failed to update own metadata: %v", err)
				}
			}
			continue
		}

		var target string
		if leaderID != "" {
			target = rm.FSM.GetNodeAddr(string(leaderID))
		} else if rm.FSM.GetNodeCount() > 1 {
			for id, addr := range rm.FSM.GetAllNodes() {
				if id != rm.NodeID && addr != "" {
					target = addr
					break
				}
			}
		}
		if target == "" {
			continue
		}
		if meta := rm.FSM.GetNodeMeta(rm.NodeID); meta != nil && meta.HttpAddr == rm.ClusterAdvertise && rm.FSM.IsInitialized() {
			continue
		}
		if err := rm.announce(target); err != nil {
			log.Printf("[AutoConfig] %v", err)
		}
	}
}

func (rm *RaftManager) announce(target string) error {
	raftAddr := rm.Advertise
	if raftAddr == "" {
		raftAddr = rm.Bind
	}
	payload := joinRequest{
		NodeID:          rm.NodeID,
		RaftAddr:        raftAddr,
		HttpAddr:        rm.ClusterAdvertise,
		AppVersion:      CurrentAppVersion,
		ProtocolVersion: CurrentProtocolVersion,
		SchemaVersion:   CurrentSchemaVersion,
	}
	cfg := rm.Raft.GetConfiguration()
	if err := cfg.Error(); err == nil {
		for _, s := range cfg.Configuration().Servers {
			if s.ID == raft.ServerID(rm.NodeID) && s.Suffrage == raft.Nonvoter {
				payload.NonVoter = true
				break
			}
		}
	}
	data, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, clusterURL(target, "/api/cluster/join"), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create join request: %w", err)
	}
	req.Header.Set("X-Raft-Secret", rm.Secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := rm.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to contact node at %s: %w", target, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registration with %s failed: HTTP %d", target, resp.StatusCode)
	}
	log.Printf("[AutoConfig] Successfully registered with node at %s", target)
	return nil
}
