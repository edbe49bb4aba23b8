// Real or AI game rules
//
// Each round, all players in a room are shown the same image and vote on
// whether it is a real photograph or AI-generated. A round ends when the
// countdown expires or every player has voted, whichever comes first; the
// true label is then revealed for a few seconds, correct votes score a
// point, and the next image is dealt. After the last round the final
// scores stand.
//
// The state machine lives entirely in this file and knows nothing about
// transports. Rounds advance lobby -> playing -> showing-result -> playing
// -> ... -> finished; every transition checks the current status first, so
// a timer expiry racing a unanimous vote resolves to a single scoring pass.

package main

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type Status string

const (
	StatusLobby         Status = "lobby"
	StatusPlaying       Status = "playing"
	StatusShowingResult Status = "showing-result"
	StatusFinished      Status = "finished"
)

// Player is a participant in a single room. CurrentVote is deliberately
// unexported from JSON: individual choices never reach other clients.
type Player struct {
	ID          string     `json:"id"`
	Nickname    string     `json:"nickname"`
	Score       int        `json:"score"`
	CurrentVote ImageLabel `json:"-"`
	HasVoted    bool       `json:"hasVoted"`
}

// GameState is the mutable aggregate for one room, serialized as-is for
// full-state snapshots. CurrentImage is non-nil only while playing or
// showing a result, and CorrectAnswer is set from round-end onward.
type GameState struct {
	Status        Status     `json:"status"`
	CurrentRound  int        `json:"currentRound"`
	TotalRounds   int        `json:"totalRounds"`
	CurrentImage  *Image     `json:"currentImage"`
	TimeLeft      int        `json:"timeLeft"`
	Players       []*Player  `json:"players"`
	CorrectAnswer ImageLabel `json:"correctAnswer,omitempty"`
}

// RoundResult is what end-round hands the transport layer to disseminate.
type RoundResult struct {
	CorrectAnswer ImageLabel `json:"correctAnswer"`
	Players       []*Player  `json:"players"`
}

// VoteOutcome reports a successful vote: the aggregate count that may be
// shared mid-round, and the round result iff this vote was the last one.
type VoteOutcome struct {
	VoteCount    int
	TotalPlayers int
	Ended        *RoundResult
}

type Room struct {
	Code   string
	HostID string

	mu           sync.Mutex
	game         GameState
	images       []Image
	roundStarted time.Time
	createdAt    time.Time
	lastActive   time.Time

	roundSeconds int
	revealDelay  time.Duration
	clock        clockwork.Clock
}

func newRoom(code, hostID string, images []Image, roundSeconds int, revealDelay time.Duration, clock clockwork.Clock) *Room {
	now := clock.Now()

	return &Room{
		Code:   code,
		HostID: hostID,
		game: GameState{
			Status:       StatusLobby,
			CurrentRound: 0,
			TotalRounds:  len(images),
			TimeLeft:     roundSeconds,
			Players:      []*Player{},
		},
		images:       images,
		createdAt:    now,
		lastActive:   now,
		roundSeconds: roundSeconds,
		revealDelay:  revealDelay,
		clock:        clock,
	}
}

func (r *Room) touchLocked() {
	r.lastActive = r.clock.Now()
}

func (r *Room) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastActive
}

// ImageIDs lists the session image ids in play order. The list is fixed
// at creation, so no lock is needed.
func (r *Room) ImageIDs() []string {
	ids := make([]string, len(r.images))
	for i, image := range r.images {
		ids[i] = image.ID
	}

	return ids
}

func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.game.Players)
}

// AddPlayer appends a new unvoted player with score 0. Rejected once the
// game has left the lobby, or when the nickname collides case-insensitively
// with an existing player.
func (r *Room) AddPlayer(nickname string) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if nickname == "" {
		return nil, gameErr(codeJoinFailed, "nickname required")
	}
	if r.game.Status != StatusLobby {
		return nil, gameErr(codeJoinFailed, "game already started")
	}

	for _, p := range r.game.Players {
		if strings.EqualFold(p.Nickname, nickname) {
			return nil, gameErr(codeJoinFailed, "nickname already taken")
		}
	}

	player := &Player{
		ID:       uuid.NewString(),
		Nickname: nickname,
		Score:    0,
		HasVoted: false,
	}

	r.game.Players = append(r.game.Players, player)
	r.touchLocked()

	clone := *player

	return &clone, nil
}

// RemovePlayer is idempotent; removing an unknown player is a no-op.
func (r *Room) RemovePlayer(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dst := r.game.Players[:0]

	for _, p := range r.game.Players {
		if p.ID == playerID {
			r.touchLocked()
			continue
		}
		dst = append(dst, p)
	}

	r.game.Players = dst
}

// Start moves the room from lobby to round 1.
func (r *Room) Start() (GameState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game.Status != StatusLobby {
		return GameState{}, gameErr(codeAlreadyStarted, "game already started")
	}
	if len(r.images) == 0 {
		return GameState{}, gameErr(codeInsufficientImages, "no images available for this room")
	}

	r.game.Status = StatusPlaying
	r.game.CurrentRound = 1
	r.game.CurrentImage = &r.images[0]
	r.game.TimeLeft = r.roundSeconds
	r.resetVotesLocked()
	r.roundStarted = r.clock.Now()
	r.touchLocked()

	return r.snapshotLocked(), nil
}

// Vote records a player's label choice. A player votes at most once per
// round; the vote that completes the set ends the round immediately.
func (r *Room) Vote(playerID string, vote ImageLabel) (*VoteOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game.Status != StatusPlaying {
		return nil, gameErr(codeNotPlaying, "no round in progress")
	}
	if vote != LabelReal && vote != LabelAI {
		return nil, gameErr(codeInvalidVote, "vote must be \"real\" or \"ai\"")
	}

	var player *Player
	for _, p := range r.game.Players {
		if p.ID == playerID {
			player = p
			break
		}
	}
	if player == nil {
		return nil, gameErr(codePlayerNotFound, "player not found in this room")
	}
	if player.HasVoted {
		return nil, gameErr(codeAlreadyVoted, "already voted this round")
	}

	player.CurrentVote = vote
	player.HasVoted = true
	r.touchLocked()

	outcome := &VoteOutcome{
		VoteCount:    r.voteCountLocked(),
		TotalPlayers: len(r.game.Players),
	}

	if r.allVotedLocked() {
		outcome.Ended = r.endRoundLocked()
	}

	return outcome, nil
}

// EndRound concludes the current round, scoring each correct vote once.
// Returns false when there is no round to end, so the second of two racing
// triggers becomes a no-op.
func (r *Room) EndRound() (*RoundResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.endRoundLocked()

	return result, result != nil
}

func (r *Room) endRoundLocked() *RoundResult {
	if r.game.Status != StatusPlaying || r.game.CurrentImage == nil {
		return nil
	}

	answer := r.game.CurrentImage.Type
	r.game.CorrectAnswer = answer
	r.game.Status = StatusShowingResult

	for _, p := range r.game.Players {
		if p.HasVoted && p.CurrentVote == answer {
			p.Score++
		}
	}

	r.touchLocked()

	return &RoundResult{
		CorrectAnswer: answer,
		Players:       r.playersCopyLocked(),
	}
}

// Advance moves past a shown result: onto the next round, or to the
// terminal finished state once the rounds are spent.
func (r *Room) Advance() (GameState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.advanceLocked() {
		return GameState{}, false
	}

	return r.snapshotLocked(), true
}

func (r *Room) advanceLocked() bool {
	if r.game.Status != StatusShowingResult {
		return false
	}

	next := r.game.CurrentRound + 1

	if next > r.game.TotalRounds {
		r.game.Status = StatusFinished
		r.game.CurrentImage = nil
		r.touchLocked()

		return true
	}

	r.game.CurrentRound = next
	r.game.CurrentImage = &r.images[next-1]
	r.game.TimeLeft = r.roundSeconds
	r.game.Status = StatusPlaying
	r.game.CorrectAnswer = ""
	r.resetVotesLocked()
	r.roundStarted = r.clock.Now()
	r.touchLocked()

	return true
}

// Tick decrements the countdown by one unit. Returns the remaining time
// and whether every player has voted; ok is false once the room is no
// longer playing (a stale ticker firing after the round ended).
func (r *Room) Tick() (timeLeft int, allVoted bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game.Status != StatusPlaying {
		return 0, false, false
	}

	if r.game.TimeLeft > 0 {
		r.game.TimeLeft--
	}

	return r.game.TimeLeft, r.allVotedLocked(), true
}

// Snapshot repairs the room against the wall clock, then returns a full
// copy of the game state with the answer key stripped from the current
// image. This is the pull realization of the round timer: time left is
// recomputed from the round start, an expired round is ended, and an
// overstayed result screen advances - at most one transition per read.
func (r *Room) Snapshot() GameState {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.repairTimeLocked()
	r.touchLocked()

	return r.snapshotLocked()
}

func (r *Room) repairTimeLocked() {
	now := r.clock.Now()

	switch r.game.Status {
	case StatusPlaying:
		elapsed := int(now.Sub(r.roundStarted) / time.Second)

		timeLeft := r.roundSeconds - elapsed
		if timeLeft < 0 {
			timeLeft = 0
		}
		r.game.TimeLeft = timeLeft

		if timeLeft == 0 {
			r.endRoundLocked()
		}

	case StatusShowingResult:
		// roundStarted is not reset on round-end, so the reveal window is
		// measured from the start of the round regardless of how it ended.
		if now.Sub(r.roundStarted) >= time.Duration(r.roundSeconds)*time.Second+r.revealDelay {
			r.advanceLocked()
		}
	}
}

func (r *Room) snapshotLocked() GameState {
	snapshot := r.game
	snapshot.Players = r.playersCopyLocked()

	if r.game.CurrentImage != nil {
		image := r.game.CurrentImage.sanitized()
		snapshot.CurrentImage = &image
	}

	return snapshot
}

func (r *Room) playersCopyLocked() []*Player {
	players := make([]*Player, 0, len(r.game.Players))

	for _, p := range r.game.Players {
		clone := *p
		players = append(players, &clone)
	}

	return players
}

func (r *Room) resetVotesLocked() {
	for _, p := range r.game.Players {
		p.CurrentVote = ""
		p.HasVoted = false
	}
}

func (r *Room) voteCountLocked() int {
	count := 0

	for _, p := range r.game.Players {
		if p.HasVoted {
			count++
		}
	}

	return count
}

func (r *Room) allVotedLocked() bool {
	if len(r.game.Players) == 0 {
		return false
	}

	return r.voteCountLocked() == len(r.game.Players)
}
