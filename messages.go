package main

import (
	"encoding/json"
)

// Message vocabulary shared by both transports. Inbound frames carry a
// type tag plus a raw payload decoded per type; outbound payloads are a
// closed set of structs, so nothing untyped crosses the wire.

const (
	msgPlayerJoin = "player:join"
	msgPlayerVote = "player:vote"
	msgGameStart  = "game:start"
	msgGameState  = "game:state"
	msgGameEnd    = "game:end"
	msgRoundStart = "round:start"
	msgRoundEnd   = "round:end"
	msgError      = "error"
)

type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type serverMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Inbound payloads

type joinPayload struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname,omitempty"`
	IsHost   bool   `json:"isHost,omitempty"`
	HostID   string `json:"hostId,omitempty"` // required when isHost is set
}

type votePayload struct {
	Vote ImageLabel `json:"vote"`
}

// Outbound payloads

type joinResultPayload struct {
	Player  *Player `json:"player"`
	Success bool    `json:"success"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type roundStartPayload struct {
	Round    int    `json:"round"`
	Image    *Image `json:"image"`
	TimeLeft int    `json:"timeLeft"`
}

// rosterPayload, voteTallyPayload, and tickPayload are the three shapes a
// game:state frame takes mid-round; snapshotPayload is the full-state form
// sent to a (re)joining host.

type rosterPayload struct {
	Players []*Player `json:"players"`
}

type voteTallyPayload struct {
	VoteCount    int `json:"voteCount"`
	TotalPlayers int `json:"totalPlayers"`
}

type tickPayload struct {
	TimeLeft int `json:"timeLeft"`
}

type snapshotPayload struct {
	GameState GameState `json:"gameState"`
}

type gameEndPayload struct {
	Players []*Player `json:"players"`
}

func errorMessage(err error) serverMessage {
	return serverMessage{
		Type: msgError,
		Payload: errorPayload{
			Message: err.Error(),
			Code:    errCode(err),
		},
	}
}

// roundStartMessage expects a snapshot, whose image is already stripped
// of its label.
func roundStartMessage(gs GameState) serverMessage {
	return serverMessage{
		Type: msgRoundStart,
		Payload: roundStartPayload{
			Round:    gs.CurrentRound,
			Image:    gs.CurrentImage,
			TimeLeft: gs.TimeLeft,
		},
	}
}
