/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"sync"

	"github.com/jonboulle/clockwork"
)

// roomCodeAlphabet omits 0/O/1/I so codes stay human-typable from a
// shared screen. Its length divides 256, so a single random byte maps
// onto it without modulo bias.
const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
)

// RoomStore is the authoritative table of active rooms. All room access
// goes through it; transports hold only room codes and player IDs.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*Room

	cfg     *Config
	catalog []Image
	clock   clockwork.Clock
	onEvict func(*Room)
}

// newRoomStore builds a store over the given image catalog. onEvict, if
// non-nil, runs for each room the idle reaper removes, letting the push
// adapter tear down that room's connections.
func newRoomStore(cfg *Config, clock clockwork.Clock, catalog []Image, onEvict func(*Room)) *RoomStore {
	s := &RoomStore{
		rooms:   make(map[string]*Room),
		cfg:     cfg,
		catalog: catalog,
		clock:   clock,
		onEvict: onEvict,
	}

	if cfg.roomTimeout > 0 {
		go s.reaperLoop()
	}

	return s
}

// CreateRoom deals a fresh session image list and registers a new room in
// the lobby state under a unique code.
func (s *RoomStore) CreateRoom(hostID string) (*Room, error) {
	images, err := selectImages(s.catalog, s.cfg.rounds, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code := randomRoomCode()
	for s.rooms[code] != nil {
		code = randomRoomCode()
	}

	room := newRoom(code, hostID, images, s.cfg.roundSeconds(), s.cfg.revealDelay, s.clock)
	s.rooms[code] = room

	logf(s.cfg, "ROOMS: Created room %s", code)

	return room, nil
}

func (s *RoomStore) GetRoom(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]

	return room, ok
}

func (s *RoomStore) DeleteRoom(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[code]; ok {
		delete(s.rooms, code)
		logf(s.cfg, "ROOMS: Deleted room %s", code)
	}
}

// AddPlayer joins a nickname to a room's lobby.
func (s *RoomStore) AddPlayer(code, nickname string) (*Player, error) {
	room, ok := s.GetRoom(code)
	if !ok {
		return nil, gameErr(codeRoomNotFound, "room not found")
	}

	player, err := room.AddPlayer(nickname)
	if err != nil {
		return nil, err
	}

	logf(s.cfg, "GAMES: Player %q joined %s", nickname, code)

	return player, nil
}

// RemovePlayer is idempotent; unknown rooms and players are no-ops.
func (s *RoomStore) RemovePlayer(code, playerID string) {
	room, ok := s.GetRoom(code)
	if !ok {
		return
	}

	room.RemovePlayer(playerID)
}

func randomRoomCode() string {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	out := make([]byte, roomCodeLength)
	for i := range out {
		out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
	}

	return string(out)
}

// reaperLoop periodically evicts rooms that have been idle longer than
// the configured room timeout.
func (s *RoomStore) reaperLoop() {
	ticker := s.clock.NewTicker(s.cfg.roomTimeout / 2)
	defer ticker.Stop()

	for range ticker.Chan() {
		cutoff := s.clock.Now().Add(-s.cfg.roomTimeout)

		s.mu.Lock()
		evicted := []*Room{}
		for code, room := range s.rooms {
			if room.LastActive().Before(cutoff) {
				delete(s.rooms, code)
				evicted = append(evicted, room)
			}
		}
		s.mu.Unlock()

		for _, room := range evicted {
			logf(s.cfg, "ROOMS: Evicted idle room %s", room.Code)

			if s.onEvict != nil {
				s.onEvict(room)
			}
		}
	}
}
