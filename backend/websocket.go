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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/raft"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Message types for WebSocket communication
const (
	MsgTypeJoin         = "JOIN"
	MsgTypeAck          = "ACK"
	MsgTypeMatchUpdate  = "MATCH_UPDATE"
	MsgTypeMatchDeleted = "MATCH_DELETED"
	MsgTypeError        = "ERROR"
	MsgTypePing         = "PING"
	MsgTypePong         = "PONG"
)

// Message is a WebSocket message. Observers send JOIN with an optional
// matchId; the hub sends MATCH_UPDATE whenever a followed match changes.
type Message struct {
	Type         string              `json:"type"`
	TournamentID string              `json:"tournamentId,omitempty"`
	MatchID      string              `json:"matchId,omitempty"`
	Match        *scoring.Match      `json:"match,omitempty"`
	Scoreboard   *scoring.Scoreboard `json:"scoreboard,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// ActionRequest is the body of an action batch.
type ActionRequest struct {
	TournamentID string            `json:"tournamentId,omitempty"`
	Actions      []json.RawMessage `json:"actions"`
}

// ActionResponse reports the outcome of an action batch together with the
// scoreboards of the matches it touched.
type ActionResponse struct {
	Outcomes    []ActionOutcome               `json:"outcomes"`
	Scoreboards map[string]scoring.Scoreboard `json:"scoreboards,omitempty"`
}

// HubRequest types
const (
	ReqTypeWSJoin        = "WS_JOIN"
	ReqTypeHTTPLoad      = "HTTP_LOAD"
	ReqTypeHTTPAction    = "HTTP_ACTION"
	ReqTypeHTTPSaveMatch = "HTTP_SAVE_MATCH"
	ReqTypeHTTPShare     = "HTTP_SHARE"
	ReqTypeHTTPDelete    = "HTTP_DELETE"
	ReqTypeBroadcast     = "BROADCAST"
)

// HubRequest represents a request to the Hub
type HubRequest struct {
	Type     string
	Client   *wsClient        // WS_JOIN
	Message  Message          // WS_JOIN
	UserId   string           // HTTP requests
	Headers  http.Header      // For forwarding cookies/auth
	Actions  ActionRequest    // HTTP_ACTION
	Payload  []byte           // HTTP_SAVE_MATCH: match, HTTP_SHARE: permissions, BROADCAST: tournament
	MatchIDs []string         // BROADCAST: matches that changed
	Reply    chan HubResponse // HTTP requests
}

// HubResponse represents a response from the Hub
type HubResponse struct {
	Data  []byte
	Error error
}

// Hub serializes every change to one tournament and fans match updates
// out to the observers attached to it.
type Hub struct {
	tournamentId string

	// Registered clients.
	clients map[*wsClient]bool

	// Inbound requests
	requests chan HubRequest

	// Register requests from the clients.
	register chan *wsClient

	// Unregister requests from clients.
	unregister chan *wsClient

	// In-memory state
	data *TournamentRecord

	store *TournamentStore
	r     *Registry
	hm    *HubManager
	rm    *RaftManager
}

func newHub(id string, hm *HubManager) *Hub {
	return &Hub{
		tournamentId: id,
		requests:     make(chan HubRequest, 64), // Buffered to prevent dropping FSM updates
		register:     make(chan *wsClient),
		unregister:   make(chan *wsClient),
		clients:      make(map[*wsClient]bool),
		store:        hm.store,
		r:            hm.r,
		hm:           hm,
		rm:           hm.rm,
	}
}

func (h *Hub) run() {
	idleTimer := time.NewTicker(hubIdleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case req := <-h.requests:
			if req.Type == ReqTypeBroadcast {
				h.handleBroadcast(req.Payload, req.MatchIDs)
				continue
			}
			if err := h.ensureLoaded(); err != nil {
				if req.Client != nil {
					req.Client.sendJSON(Message{Type: MsgTypeError, Error: "Tournament not found"})
				}
				if req.Reply != nil {
					req.Reply <- HubResponse{Error: err}
				}
				continue
			}

			switch req.Type {
			case ReqTypeWSJoin:
				if req.Client != nil && h.clients[req.Client] {
					h.handleWSJoin(req.Client, req.Message)
				}
			case ReqTypeHTTPAction:
				h.handleHTTPAction(req)
			case ReqTypeHTTPLoad:
				h.handleHTTPLoad(req.Reply)
			case ReqTypeHTTPSaveMatch:
				h.handleHTTPSaveMatch(req.Payload, req.Reply)
			case ReqTypeHTTPShare:
				h.handleHTTPShare(req.Payload, req.Reply)
			case ReqTypeHTTPDelete:
				h.handleHTTPDelete(req.Reply)
			}
		case <-idleTimer.C:
			if len(h.clients) == 0 && h.hm.removeIdle(h) {
				return
			}
		}
	}
}

// Do hands a request to the hub and waits for its reply. A hub that does
// not accept the request in time is reported as ErrHubBusy.
func (h *Hub) Do(ctx context.Context, req HubRequest) ([]byte, error) {
	req.Reply = make(chan HubResponse, 1)
	timer := time.NewTimer(hubRequestTimeout)
	defer timer.Stop()

	select {
	case h.requests <- req:
	case <-timer.C:
		return nil, ErrHubBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer.Reset(3 * hubRequestTimeout)
	select {
	case resp := <-req.Reply:
		return resp.Data, resp.Error
	case <-timer.C:
		return nil, ErrHubBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) ensureLoaded() error {
	if h.data != nil {
		return nil
	}
	t, err := h.store.loadLive(h.tournamentId)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("Hub: Error loading tournament %s: %v", h.tournamentId, err)
		}
		return err
	}
	h.data = t
	return nil
}

// matchUpdate builds the observer message for one match.
func (h *Hub) matchUpdate(matchID string) Message {
	s, _, err := h.data.Session(matchID)
	if err != nil {
		return Message{Type: MsgTypeMatchDeleted, TournamentID: h.tournamentId, MatchID: matchID}
	}
	m := s.Match()
	sb := s.Scoreboard()
	return Message{Type: MsgTypeMatchUpdate, TournamentID: h.tournamentId, MatchID: matchID, Match: &m, Scoreboard: &sb}
}

func (h *Hub) broadcastMatch(matchID string) {
	msg := h.matchUpdate(matchID)
	for client := range h.clients {
		if !client.joined || (client.matchId != "" && client.matchId != matchID) {
			continue
		}
		select {
		case client.send <- msg:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) handleBroadcast(data []byte, matchIDs []string) {
	var t TournamentRecord
	if err := json.Unmarshal(data, &t); err != nil {
		log.Printf("handleBroadcast: Error unmarshaling tournament data: %v", err)
		return
	}
	t.normalize()
	if t.IsDeleted() {
		h.data = nil
		for client := range h.clients {
			client.sendJSON(Message{Type: MsgTypeError, TournamentID: h.tournamentId, Error: "Tournament deleted"})
		}
		return
	}
	h.data = &t
	for _, id := range matchIDs {
		h.broadcastMatch(id)
	}
}

func (h *Hub) handleWSJoin(c *wsClient, msg Message) {
	if GetTournamentAccess(c.userId, h.data.Metadata()) < AccessRead {
		log.Printf("Forbidden: User %s attempted to join tournament %s without permissions", maskEmail(c.userId), h.tournamentId)
		c.sendJSON(Message{Type: MsgTypeError, Error: "Forbidden: You do not have access to this tournament"})
		return
	}
	if msg.MatchID != "" && h.data.Match(msg.MatchID) < 0 {
		c.sendJSON(Message{Type: MsgTypeError, MatchID: msg.MatchID, Error: "Match not found"})
		return
	}
	c.joined = true
	c.matchId = msg.MatchID
	c.sendJSON(Message{Type: MsgTypeAck, TournamentID: h.tournamentId, MatchID: msg.MatchID})

	for _, m := range h.data.Matches {
		if msg.MatchID == "" && m.Status != scoring.StatusLive {
			continue
		}
		if msg.MatchID != "" && m.ID != msg.MatchID {
			continue
		}
		c.sendJSON(h.matchUpdate(m.ID))
	}
}

func (h *Hub) handleHTTPAction(req HubRequest) {
	resp, matchIDs, err := h.processActions(req.Actions.Actions, req.UserId)
	if err != nil {
		if errors.Is(err, ErrNotLeader) {
			h.forwardToLeader(req)
			return
		}
		req.Reply <- HubResponse{Error: err}
		return
	}
	for _, id := range matchIDs {
		h.broadcastMatch(id)
	}
	data, err := json.Marshal(resp)
	req.Reply <- HubResponse{Data: data, Error: err}
}

// authorizeActions checks the user's access for every action in the batch.
func (h *Hub) authorizeActions(actions []json.RawMessage, userId string) error {
	access := GetTournamentAccess(userId, h.data.Metadata())
	for _, raw := range actions {
		var meta struct {
			Type string `json:"type"`
		}
		json.Unmarshal(raw, &meta)
		need := AccessWrite
		if meta.Type == ActionTournamentUpdate {
			need = AccessAdmin
		}
		if access < need {
			log.Printf("Forbidden: User %s attempted to write action %s to tournament %s", maskEmail(userId), meta.Type, h.tournamentId)
			if userId == "" {
				return fmt.Errorf("%w: login required", ErrForbidden)
			}
			return fmt.Errorf("%w: no %s access to this tournament", ErrForbidden, need)
		}
	}
	return nil
}

// processActions validates, authorizes and applies a batch. It returns the
// ids of the matches to broadcast.
func (h *Hub) processActions(actions []json.RawMessage, userId string) (*ActionResponse, []string, error) {
	if len(actions) == 0 {
		return nil, nil, fmt.Errorf("%w: no actions", ErrInvalidAction)
	}
	if err := ValidateActions(actions); err != nil {
		log.Printf("Invalid actions payload from user %s: %v", maskEmail(userId), err)
		return nil, nil, err
	}
	if err := h.authorizeActions(actions, userId); err != nil {
		return nil, nil, err
	}

	if h.rm != nil {
		if h.rm.Raft.State() != raft.Leader {
			return nil, nil, ErrNotLeader
		}
		res, err := h.rm.Propose(RaftCommand{
			Type:   CmdApplyAction,
			ID:     h.tournamentId,
			Action: &ActionPayload{TournamentID: h.tournamentId, Actions: actions, UserID: userId},
		})
		if err != nil {
			return nil, nil, err
		}
		outcomes, _ := res.([]ActionOutcome)
		// The FSM has stored the result and queued the broadcast.
		t, err := h.store.loadLive(h.tournamentId)
		if err != nil {
			return nil, nil, err
		}
		h.data = t
		return h.response(outcomes), nil, nil
	}

	clone := h.data.Clone()
	outcomes, err := ApplyActions(clone, actions)
	if err != nil {
		return nil, nil, err
	}
	matchIDs := changedMatches(outcomes)
	if len(matchIDs) == 0 && !anyApplied(outcomes) {
		return h.response(outcomes), nil, nil
	}
	if err := h.store.SaveTournamentInMemory(clone, false); err != nil {
		return nil, nil, fmt.Errorf("saving tournament: %w", err)
	}
	h.data = clone
	h.r.UpdateTournament(clone)
	return h.response(outcomes), matchIDs, nil
}

func anyApplied(outcomes []ActionOutcome) bool {
	for _, o := range outcomes {
		if o.Applied {
			return true
		}
	}
	return false
}

// changedMatches returns the distinct match ids of the applied outcomes.
func changedMatches(outcomes []ActionOutcome) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, o := range outcomes {
		if o.Applied && o.MatchID != "" && !seen[o.MatchID] {
			seen[o.MatchID] = true
			ids = append(ids, o.MatchID)
		}
	}
	return ids
}

func (h *Hub) response(outcomes []ActionOutcome) *ActionResponse {
	resp := &ActionResponse{Outcomes: outcomes, Scoreboards: make(map[string]scoring.Scoreboard)}
	for _, id := range changedMatches(outcomes) {
		if s, _, err := h.data.Session(id); err == nil {
			resp.Scoreboards[id] = s.Scoreboard()
		}
	}
	return resp
}

func (h *Hub) forwardToLeader(req HubRequest) {
	leaderAddr := h.rm.GetLeaderHTTPAddr()

	// Prevent forwarding to self if split-brain or stale metadata
	if leaderAddr == h.rm.ClusterAdvertise {
		req.Reply <- HubResponse{Error: fmt.Errorf("local node listed as leader but not in leader state")}
		return
	}
	if leaderAddr == "" {
		req.Reply <- HubResponse{Error: fmt.Errorf("leader not found")}
		return
	}

	body, _ := json.Marshal(ActionRequest{TournamentID: h.tournamentId, Actions: req.Actions.Actions})
	forwardReq, err := http.NewRequest(http.MethodPost, clusterURL(leaderAddr, "/api/cluster/action"), bytes.NewReader(body))
	if err != nil {
		req.Reply <- HubResponse{Error: err}
		return
	}
	for _, name := range []string{"Cookie", "Authorization", "Content-Type", "X-Raft-Forwarded"} {
		if v := req.Headers.Get(name); v != "" {
			forwardReq.Header.Set(name, v)
		}
	}
	h.rm.markForwarded(forwardReq)

	resp, err := h.rm.GetHTTPClient().Do(forwardReq)
	if err != nil {
		req.Reply <- HubResponse{Error: err}
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		req.Reply <- HubResponse{Error: &statusError{code: resp.StatusCode, msg: strings.TrimSpace(string(data))}}
		return
	}
	req.Reply <- HubResponse{Data: data, Error: err}
}

func (h *Hub) handleHTTPLoad(reply chan HubResponse) {
	data, err := json.Marshal(h.data)
	reply <- HubResponse{Data: data, Error: err}
}

// commit makes a changed copy of the tournament the hub's state. In
// cluster mode cmd goes through the log and the FSM broadcasts; otherwise
// the copy is written through and broadcast here.
func (h *Hub) commit(clone *TournamentRecord, cmd RaftCommand, matchIDs []string) error {
	if h.rm != nil {
		if _, err := h.rm.Propose(cmd); err != nil {
			return err
		}
		t, err := h.store.LoadTournament(h.tournamentId)
		if err != nil {
			return err
		}
		h.data = t
		if t.IsDeleted() {
			h.data = nil
		}
		return nil
	}

	if clone.IsDeleted() {
		if err := h.store.DeleteTournament(h.tournamentId); err != nil {
			return err
		}
		h.r.DeleteTournament(h.tournamentId)
		h.data = nil
		for client := range h.clients {
			client.sendJSON(Message{Type: MsgTypeError, TournamentID: h.tournamentId, Error: "Tournament deleted"})
		}
		return nil
	}
	if err := h.store.SaveTournament(clone); err != nil {
		return err
	}
	h.data = clone
	h.r.UpdateTournament(clone)
	for _, id := range matchIDs {
		h.broadcastMatch(id)
	}
	return nil
}

func (h *Hub) handleHTTPSaveMatch(payload []byte, reply chan HubResponse) {
	var m scoring.Match
	if err := json.Unmarshal(payload, &m); err != nil {
		reply <- HubResponse{Error: fmt.Errorf("%w: %v", ErrInvalidAction, err)}
		return
	}
	clone := h.data.Clone()
	if err := PutMatch(clone, m); err != nil {
		reply <- HubResponse{Error: err}
		return
	}
	clone.LastUpdated = max(clone.LastUpdated, time.Now().UnixMilli())

	raw := json.RawMessage(payload)
	cmd := RaftCommand{Type: CmdSaveMatch, ID: h.tournamentId, MatchData: &raw}
	reply <- HubResponse{Error: h.commit(clone, cmd, []string{m.ID})}
}

func (h *Hub) handleHTTPShare(payload []byte, reply chan HubResponse) {
	var p Permissions
	if err := json.Unmarshal(payload, &p); err != nil {
		reply <- HubResponse{Error: fmt.Errorf("%w: %v", ErrInvalidAction, err)}
		return
	}
	if err := validatePermissions(p); err != nil {
		reply <- HubResponse{Error: err}
		return
	}
	users := make(map[string]string, len(p.Users))
	for email, role := range p.Users {
		users[normalizeEmail(email)] = role
	}
	p.Users = users
	clone := h.data.Clone()
	clone.Permissions = p
	clone.normalize()

	data, _ := json.Marshal(clone)
	raw := json.RawMessage(data)
	cmd := RaftCommand{Type: CmdSaveTournament, ID: h.tournamentId, TournamentData: &raw}
	if err := h.commit(clone, cmd, nil); err != nil {
		reply <- HubResponse{Error: err}
		return
	}
	out, err := json.Marshal(h.data.Metadata())
	reply <- HubResponse{Data: out, Error: err}
}

func (h *Hub) handleHTTPDelete(reply chan HubResponse) {
	tombstone := h.data.Clone()
	tombstone.Status = StatusDeleted
	reply <- HubResponse{Error: h.commit(tombstone, RaftCommand{Type: CmdDeleteTournament, ID: h.tournamentId}, nil)}
}

// HubManager manages the hubs of the active tournaments.
type HubManager struct {
	hubs  map[string]*Hub
	mu    sync.Mutex
	store *TournamentStore
	r     *Registry
	rm    *RaftManager
}

func NewHubManager(store *TournamentStore, r *Registry) *HubManager {
	return &HubManager{
		hubs:  make(map[string]*Hub),
		store: store,
		r:     r,
	}
}

func (hm *HubManager) SetRaftManager(rm *RaftManager) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.rm = rm
}

// GetHub returns the tournament's hub, starting it if needed.
func (hm *HubManager) GetHub(id string) *Hub {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hub, ok := hm.hubs[id]; ok {
		return hub
	}
	hub := newHub(id, hm)
	hm.hubs[id] = hub
	go hub.run()
	return hub
}

// removeIdle removes the hub if it has no pending work. It reports whether
// the hub may exit.
func (hm *HubManager) removeIdle(h *Hub) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if len(h.requests) > 0 {
		return false
	}
	if hm.hubs[h.tournamentId] == h {
		delete(hm.hubs, h.tournamentId)
	}
	return true
}

func (hm *HubManager) RemoveHub(id string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	delete(hm.hubs, id)
}

func (hm *HubManager) Clear() {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.hubs = make(map[string]*Hub)
}

// BroadcastToTournament hands new tournament state to a running hub. It
// never blocks; the FSM calls it.
func (hm *HubManager) BroadcastToTournament(id string, data []byte, matchIDs []string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hub, ok := hm.hubs[id]
	if !ok {
		return
	}
	select {
	case hub.requests <- HubRequest{Type: ReqTypeBroadcast, Payload: data, MatchIDs: matchIDs}:
	default:
		log.Printf("Warning: Hub channel full, dropping broadcast for tournament %s", id)
	}
}

// ActiveHubs returns the number of running hubs.
func (hm *HubManager) ActiveHubs() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return len(hm.hubs)
}

// wsClient is a middleman between the websocket connection and the hub.
type wsClient struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan Message

	userId  string
	joined  bool
	matchId string // empty follows every match
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypeJoin:
			c.hub.requests <- HubRequest{Type: ReqTypeWSJoin, Client: c, Message: msg}
		case MsgTypePing:
			c.sendJSON(Message{Type: MsgTypePong})
		default:
			log.Printf("Unknown message type: %s", msg.Type)
			c.sendJSON(Message{Type: MsgTypeError, Error: "Unknown message type"})
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) sendJSON(msg Message) {
	select {
	case c.send <- msg:
	default:
		// Slow reader: drop the message. The next update carries the full match.
	}
}

// ServeWS attaches a live observer to a tournament's hub. The client then
// sends JOIN, optionally naming one match.
func ServeWS(hm *HubManager, w http.ResponseWriter, r *http.Request) {
	tournamentId := r.URL.Query().Get("tournamentId")
	if !isValidUUID(tournamentId) {
		http.Error(w, "Bad Request: invalid tournamentId", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	hub := hm.GetHub(tournamentId)
	client := &wsClient{hub: hub, conn: conn, send: make(chan Message, 256), userId: getUserID(r)}
	select {
	case client.hub.register <- client:
	case <-time.After(hubRequestTimeout):
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "busy"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
