// Push transport: one WebSocket endpoint for hosts and players alike.
//
// Clients join a room with player:join, hosts start the game with
// game:start, and players submit player:vote. State changes are fanned
// out to every connection in the room; individual votes are never
// broadcast, only the aggregate tally. Connection health is probed with
// pings; a dead connection removes its player and rebroadcasts the
// roster, and the last connection to leave tears the room down.

package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn *websocket.Conn
	send chan serverMessage

	// set once during join handling, read by the same goroutine and the hub
	roomID   string
	playerID string
	isHost   bool
}

// connHub groups live connections by room code. It holds no game state of
// its own; every action re-fetches the room from the store.
type connHub struct {
	mu    sync.Mutex
	rooms map[string]map[*wsClient]bool

	cfg    *Config
	store  *RoomStore
	timers *countdowns
	clock  clockwork.Clock
}

func newConnHub(cfg *Config, clock clockwork.Clock) *connHub {
	return &connHub{
		rooms:  make(map[string]map[*wsClient]bool),
		cfg:    cfg,
		timers: newCountdowns(clock),
		clock:  clock,
	}
}

func serveWS(cfg *Config, hub *connHub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &wsClient{
			conn: conn,
			send: make(chan serverMessage, 8),
		}

		go client.writePump()
		client.readPump(cfg, hub)
	}
}

func (c *wsClient) readPump(cfg *Config, h *connHub) {
	defer func() {
		h.dropClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logf(cfg, "ERROR: malformed frame from %s: %v", c.conn.RemoteAddr(), err)
			continue
		}

		switch msg.Type {
		case msgPlayerJoin:
			var payload joinPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				logf(cfg, "ERROR: malformed join payload from %s: %v", c.conn.RemoteAddr(), err)
				continue
			}
			h.handleJoin(c, payload)

		case msgGameStart:
			h.handleStart(c)

		case msgPlayerVote:
			var payload votePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				logf(cfg, "ERROR: malformed vote payload from %s: %v", c.conn.RemoteAddr(), err)
				continue
			}
			h.handleVote(c, payload)

		default:
			// ignore unknown types
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *connHub) register(c *wsClient, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.rooms[roomID]
	if conns == nil {
		conns = make(map[*wsClient]bool)
		h.rooms[roomID] = conns
	}
	conns[c] = true
}

// sendTo queues a message for one connection. Messages for a connection
// that has already been dropped, or whose buffer is full, are discarded.
func (h *connHub) sendTo(c *wsClient, msg serverMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.roomID != "" && !h.rooms[c.roomID][c] {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// broadcast fans a message out to every connection in a room except the
// excluded one. Connections too slow to drain their buffers are dropped
// rather than allowed to stall the room.
func (h *connHub) broadcast(roomID string, msg serverMessage, exclude *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[roomID] {
		if c == exclude {
			continue
		}

		select {
		case c.send <- msg:
		default:
			delete(h.rooms[roomID], c)
			close(c.send)
		}
	}
}

// dropClient detaches a connection after its read loop ends. A joined
// player is removed from the room and the roster rebroadcast; the last
// connection to leave stops the countdown and deletes the room.
func (h *connHub) dropClient(c *wsClient) {
	if c.roomID == "" {
		return
	}

	h.mu.Lock()

	empty := false
	if conns, ok := h.rooms[c.roomID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.send)
		}
		if len(conns) == 0 {
			delete(h.rooms, c.roomID)
			empty = true
		}
	}

	h.mu.Unlock()

	if empty {
		h.timers.stop(c.roomID)
		h.store.DeleteRoom(c.roomID)

		return
	}

	if c.playerID != "" {
		h.store.RemovePlayer(c.roomID, c.playerID)
		h.broadcastRoster(c.roomID)
	}
}

// closeRoom disconnects every client of an evicted room.
func (h *connHub) closeRoom(room *Room) {
	h.timers.stop(room.Code)

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[room.Code] {
		close(c.send)
	}
	delete(h.rooms, room.Code)
}

func (h *connHub) broadcastRoster(code string) {
	room, ok := h.store.GetRoom(code)
	if !ok {
		return
	}

	h.broadcast(code, serverMessage{
		Type:    msgGameState,
		Payload: rosterPayload{Players: room.Snapshot().Players},
	}, nil)
}

func (h *connHub) handleJoin(c *wsClient, payload joinPayload) {
	if c.roomID != "" {
		return
	}

	room, ok := h.store.GetRoom(payload.RoomID)
	if !ok {
		h.sendTo(c, errorMessage(gameErr(codeRoomNotFound, "room not found")))
		return
	}

	if payload.IsHost {
		if payload.HostID != room.HostID {
			h.sendTo(c, errorMessage(gameErr(codeNotHost, "host credentials do not match this room")))
			return
		}

		c.roomID = room.Code
		c.isHost = true
		h.register(c, room.Code)

		// fresh full-state send; no replay of missed events
		h.sendTo(c, serverMessage{
			Type:    msgGameState,
			Payload: snapshotPayload{GameState: room.Snapshot()},
		})

		return
	}

	player, err := h.store.AddPlayer(room.Code, payload.Nickname)
	if err != nil {
		h.sendTo(c, errorMessage(err))
		return
	}

	c.roomID = room.Code
	c.playerID = player.ID
	h.register(c, room.Code)

	h.sendTo(c, serverMessage{
		Type:    msgPlayerJoin,
		Payload: joinResultPayload{Player: player, Success: true},
	})

	h.broadcastRoster(room.Code)
}

func (h *connHub) handleStart(c *wsClient) {
	if c.roomID == "" || !c.isHost {
		h.sendTo(c, errorMessage(gameErr(codeNotHost, "only the host may start the game")))
		return
	}

	room, ok := h.store.GetRoom(c.roomID)
	if !ok {
		h.sendTo(c, errorMessage(gameErr(codeRoomNotFound, "room not found")))
		return
	}

	gs, err := room.Start()
	if err != nil {
		h.sendTo(c, errorMessage(err))
		return
	}

	logf(h.cfg, "GAMES: Started game in %s with %d players", c.roomID, len(gs.Players))

	h.broadcast(c.roomID, roundStartMessage(gs), nil)
	h.timers.start(room, h)
}

func (h *connHub) handleVote(c *wsClient, payload votePayload) {
	if c.roomID == "" || c.playerID == "" {
		return
	}

	room, ok := h.store.GetRoom(c.roomID)
	if !ok {
		return
	}

	outcome, err := room.Vote(c.playerID, payload.Vote)
	if err != nil {
		h.sendTo(c, errorMessage(err))
		return
	}

	tally := serverMessage{
		Type: msgGameState,
		Payload: voteTallyPayload{
			VoteCount:    outcome.VoteCount,
			TotalPlayers: outcome.TotalPlayers,
		},
	}

	// echo suppression: the voter gets its copy directly
	h.sendTo(c, tally)
	h.broadcast(c.roomID, tally, c)

	if outcome.Ended != nil {
		h.timers.stop(c.roomID)
		h.announceRoundEnd(room, outcome.Ended)
	}
}

// finishRound is the timer-expiry path into round-end; the unanimous-vote
// path arrives via handleVote with the result already in hand. Both
// converge on announceRoundEnd, and EndRound's status check guarantees
// only one of them scores.
func (h *connHub) finishRound(room *Room) {
	result, ok := room.EndRound()
	if !ok {
		return
	}

	h.announceRoundEnd(room, result)
}

// announceRoundEnd reveals the answer to the room, then after the reveal
// delay advances to the next round (or finishes the game) and restarts
// the countdown.
func (h *connHub) announceRoundEnd(room *Room, result *RoundResult) {
	h.broadcast(room.Code, serverMessage{
		Type:    msgRoundEnd,
		Payload: result,
	}, nil)

	go func() {
		h.clock.Sleep(room.revealDelay)

		gs, ok := room.Advance()
		if !ok {
			return
		}

		if gs.Status == StatusFinished {
			logf(h.cfg, "GAMES: Finished game in %s", room.Code)

			h.broadcast(room.Code, serverMessage{
				Type:    msgGameEnd,
				Payload: gameEndPayload{Players: gs.Players},
			}, nil)

			return
		}

		h.broadcast(room.Code, roundStartMessage(gs), nil)
		h.timers.start(room, h)
	}()
}
