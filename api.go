// Pull transport: request/response endpoints mirroring the WebSocket
// operations. Every read repairs the room against the wall clock first,
// so game progress is a function of time sampled on demand rather than
// of a server-side timer.

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type createRoomResponse struct {
	RoomID   string   `json:"roomId"`
	HostID   string   `json:"hostId"`
	ImageIDs []string `json:"imageIds"`
}

type roomInfoResponse struct {
	RoomID      string `json:"roomId"`
	Status      Status `json:"status"`
	PlayerCount int    `json:"playerCount"`
}

type actionRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type actionResponse struct {
	Success   bool       `json:"success"`
	RoomID    string     `json:"roomId,omitempty"`
	HostID    string     `json:"hostId,omitempty"`
	ImageIDs  []string   `json:"imageIds,omitempty"`
	Player    *Player    `json:"player,omitempty"`
	GameState *GameState `json:"gameState,omitempty"`
}

type pollResponse struct {
	GameState GameState `json:"gameState"`
	Timestamp int64     `json:"timestamp"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(cfg *Config, w http.ResponseWriter, err error) {
	writeJSON(cfg, w, errStatus(err), apiError{
		Error: err.Error(),
		Code:  errCode(err),
	})
}

func errStatus(err error) int {
	switch errCode(err) {
	case codeRoomNotFound:
		return http.StatusNotFound
	case codeNotHost:
		return http.StatusForbidden
	case codeInsufficientImages, "INTERNAL_ERROR":
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func serveCreateRoom(cfg *Config, store *RoomStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		hostID := uuid.NewString()

		room, err := store.CreateRoom(hostID)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, createRoomResponse{
			RoomID:   room.Code,
			HostID:   hostID,
			ImageIDs: room.ImageIDs(),
		})

		logf(cfg, "SERVE: Room %s to %s in %s",
			room.Code,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveRoomInfo(cfg *Config, store *RoomStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code := r.URL.Query().Get("roomId")
		if code == "" {
			writeError(cfg, w, gameErr(codeRoomNotFound, "roomId required"))
			return
		}

		room, ok := store.GetRoom(code)
		if !ok {
			writeError(cfg, w, gameErr(codeRoomNotFound, "room not found"))
			return
		}

		gs := room.Snapshot()

		writeJSON(cfg, w, http.StatusOK, roomInfoResponse{
			RoomID:      room.Code,
			Status:      gs.Status,
			PlayerCount: len(gs.Players),
		})
	}
}

func serveGameAction(cfg *Config, store *RoomStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()
		code := ps.ByName("roomid")

		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(cfg, w, gameErr("BAD_REQUEST", "malformed request body"))
			return
		}

		switch req.Action {
		case "create_room":
			hostID := uuid.NewString()

			room, err := store.CreateRoom(hostID)
			if err != nil {
				writeError(cfg, w, err)
				return
			}

			gs := room.Snapshot()
			writeJSON(cfg, w, http.StatusOK, actionResponse{
				Success:   true,
				RoomID:    room.Code,
				HostID:    hostID,
				ImageIDs:  room.ImageIDs(),
				GameState: &gs,
			})

		case "join":
			var payload struct {
				Nickname string `json:"nickname"`
			}
			_ = json.Unmarshal(req.Payload, &payload)

			room, ok := store.GetRoom(code)
			if !ok {
				writeError(cfg, w, gameErr(codeRoomNotFound, "room not found"))
				return
			}

			player, err := room.AddPlayer(payload.Nickname)
			if err != nil {
				writeError(cfg, w, err)
				return
			}

			logf(cfg, "GAMES: Player %q joined %s", payload.Nickname, code)

			gs := room.Snapshot()
			writeJSON(cfg, w, http.StatusOK, actionResponse{
				Success:   true,
				Player:    player,
				GameState: &gs,
			})

		case "start_game":
			var payload struct {
				HostID string `json:"hostId"`
			}
			_ = json.Unmarshal(req.Payload, &payload)

			room, ok := store.GetRoom(code)
			if !ok {
				writeError(cfg, w, gameErr(codeRoomNotFound, "room not found"))
				return
			}
			if payload.HostID != room.HostID {
				writeError(cfg, w, gameErr(codeNotHost, "host credentials do not match this room"))
				return
			}

			gs, err := room.Start()
			if err != nil {
				writeError(cfg, w, err)
				return
			}

			writeJSON(cfg, w, http.StatusOK, actionResponse{
				Success:   true,
				GameState: &gs,
			})

		case "vote":
			var payload struct {
				PlayerID string     `json:"playerId"`
				Vote     ImageLabel `json:"vote"`
			}
			_ = json.Unmarshal(req.Payload, &payload)

			room, ok := store.GetRoom(code)
			if !ok {
				writeError(cfg, w, gameErr(codeRoomNotFound, "room not found"))
				return
			}

			if _, err := room.Vote(payload.PlayerID, payload.Vote); err != nil {
				writeError(cfg, w, err)
				return
			}

			gs := room.Snapshot()
			writeJSON(cfg, w, http.StatusOK, actionResponse{
				Success:   true,
				GameState: &gs,
			})

		default:
			writeError(cfg, w, gameErr("UNKNOWN_ACTION", "unknown action"))
			return
		}

		logf(cfg, "SERVE: Game action %q in %s for %s in %s",
			req.Action,
			code,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveGamePoll(cfg *Config, store *RoomStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, ok := store.GetRoom(ps.ByName("roomid"))
		if !ok {
			writeError(cfg, w, gameErr(codeRoomNotFound, "room not found"))
			return
		}

		writeJSON(cfg, w, http.StatusOK, pollResponse{
			GameState: room.Snapshot(),
			Timestamp: store.clock.Now().UnixMilli(),
		})
	}
}

// serveImageList deals a fresh image selection. Labels are included only
// when the caller asks for them (single-player, where the answer key
// never leaves the device anyway); multiplayer clients get stripped
// records so the payload cannot be inspected for answers.
func serveImageList(cfg *Config, catalog []Image) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		includeTypes := r.URL.Query().Get("includeTypes") == "true"

		var excludeIDs []string
		if param := r.URL.Query().Get("excludeIds"); param != "" {
			if err := json.Unmarshal([]byte(param), &excludeIDs); err != nil {
				writeError(cfg, w, gameErr("BAD_REQUEST", "excludeIds must be a JSON array of image ids"))
				return
			}
		}

		images, err := selectImages(catalog, cfg.rounds, excludeIDs)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		if !includeTypes {
			for i := range images {
				images[i] = images[i].sanitized()
			}
		}

		writeJSON(cfg, w, http.StatusOK, images)
	}
}
