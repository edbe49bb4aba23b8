package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
)

func newTestServer(t *testing.T, clk clockwork.Clock) (*httptest.Server, *RoomStore) {
	t.Helper()

	cfg := testConfig()
	catalog := testCatalog(24, 24)

	hub := newConnHub(cfg, clk)
	store := newRoomStore(cfg, clk, catalog, hub.closeRoom)
	hub.store = store

	mux := httprouter.New()
	errs := make(chan error, 16)
	registerRoutes(cfg, mux, store, hub, catalog, errs)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, store
}

func doRequest(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	decoded := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return resp.StatusCode, decoded
}

func doAction(t *testing.T, srv *httptest.Server, room, action string, payload any) (int, map[string]any) {
	t.Helper()

	return doRequest(t, http.MethodPost, srv.URL+"/api/game/"+room+"/action", map[string]any{
		"action":  action,
		"payload": payload,
	})
}

func gameState(t *testing.T, body map[string]any) map[string]any {
	t.Helper()

	gs, ok := body["gameState"].(map[string]any)
	if !ok {
		t.Fatalf("no gameState in %v", body)
	}

	return gs
}

func TestCreateRoomEndpoint(t *testing.T) {
	srv, store := newTestServer(t, clockwork.NewFakeClock())

	status, body := doRequest(t, http.MethodPost, srv.URL+"/api/room", nil)
	if status != http.StatusOK {
		t.Fatalf("create returned %d: %v", status, body)
	}

	roomID, _ := body["roomId"].(string)
	hostID, _ := body["hostId"].(string)
	if roomID == "" || hostID == "" {
		t.Fatalf("missing credentials in %v", body)
	}

	imageIDs, _ := body["imageIds"].([]any)
	if len(imageIDs) != testConfig().rounds {
		t.Fatalf("expected %d session image ids, got %v", testConfig().rounds, body["imageIds"])
	}

	room, ok := store.GetRoom(roomID)
	if !ok || room.HostID != hostID {
		t.Fatal("created room not registered with the returned host id")
	}

	status, body = doRequest(t, http.MethodGet, srv.URL+"/api/room?roomId="+roomID, nil)
	if status != http.StatusOK {
		t.Fatalf("info returned %d", status)
	}
	if body["status"] != string(StatusLobby) || body["playerCount"] != float64(0) {
		t.Fatalf("unexpected room info: %v", body)
	}

	status, body = doRequest(t, http.MethodGet, srv.URL+"/api/room?roomId=ZZZZZZ", nil)
	if status != http.StatusNotFound || body["code"] != codeRoomNotFound {
		t.Fatalf("expected 404 %s, got %d %v", codeRoomNotFound, status, body)
	}
}

func TestGameActionFlow(t *testing.T) {
	clk := clockwork.NewFakeClock()
	srv, store := newTestServer(t, clk)

	_, created := doRequest(t, http.MethodPost, srv.URL+"/api/room", nil)
	roomID := created["roomId"].(string)
	hostID := created["hostId"].(string)

	status, body := doAction(t, srv, roomID, "join", map[string]any{"nickname": "Alice"})
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("join returned %d: %v", status, body)
	}

	player, ok := body["player"].(map[string]any)
	if !ok {
		t.Fatalf("join response has no player: %v", body)
	}
	playerID := player["id"].(string)
	if playerID == "" {
		t.Fatal("player id missing")
	}
	if _, leaked := player["currentVote"]; leaked {
		t.Fatal("player record leaks the current vote")
	}

	status, body = doAction(t, srv, roomID, "join", map[string]any{"nickname": "alice"})
	if status != http.StatusBadRequest || body["code"] != codeJoinFailed {
		t.Fatalf("duplicate nickname: %d %v", status, body)
	}

	status, body = doAction(t, srv, roomID, "start_game", map[string]any{"hostId": "not-the-host"})
	if status != http.StatusForbidden || body["code"] != codeNotHost {
		t.Fatalf("forged host start: %d %v", status, body)
	}

	status, body = doAction(t, srv, roomID, "start_game", map[string]any{"hostId": hostID})
	if status != http.StatusOK {
		t.Fatalf("start returned %d: %v", status, body)
	}

	gs := gameState(t, body)
	if gs["status"] != string(StatusPlaying) || gs["currentRound"] != float64(1) {
		t.Fatalf("unexpected state after start: %v", gs)
	}

	image, ok := gs["currentImage"].(map[string]any)
	if !ok {
		t.Fatalf("no image dealt: %v", gs)
	}
	if _, leaked := image["type"]; leaked {
		t.Fatalf("dealt image leaks its label: %v", image)
	}

	// peek at the answer key server-side so the vote below is correct
	room, _ := store.GetRoom(roomID)
	correct := room.images[0].Type

	status, body = doAction(t, srv, roomID, "vote", map[string]any{
		"playerId": playerID,
		"vote":     string(correct),
	})
	if status != http.StatusOK {
		t.Fatalf("vote returned %d: %v", status, body)
	}

	// the sole player voting ends the round
	gs = gameState(t, body)
	if gs["status"] != string(StatusShowingResult) {
		t.Fatalf("expected showing-result, got %v", gs["status"])
	}
	if gs["correctAnswer"] != string(correct) {
		t.Fatalf("answer not revealed: %v", gs)
	}

	status, body = doAction(t, srv, roomID, "vote", map[string]any{
		"playerId": playerID,
		"vote":     string(correct),
	})
	if status != http.StatusBadRequest || body["code"] != codeNotPlaying {
		t.Fatalf("vote during reveal: %d %v", status, body)
	}

	// past the reveal window the next poll lands in round 2
	clk.Advance(35 * time.Second)

	status, body = doRequest(t, http.MethodGet, srv.URL+"/api/game/"+roomID+"/poll", nil)
	if status != http.StatusOK {
		t.Fatalf("poll returned %d", status)
	}

	gs = gameState(t, body)
	if gs["status"] != string(StatusPlaying) || gs["currentRound"] != float64(2) {
		t.Fatalf("expected playing round 2, got %v", gs)
	}

	players := gs["players"].([]any)
	scored := players[0].(map[string]any)
	if scored["score"] != float64(1) {
		t.Fatalf("correct vote not scored: %v", scored)
	}
	if scored["hasVoted"] != false {
		t.Fatalf("vote state not reset: %v", scored)
	}

	if _, ok := body["timestamp"].(float64); !ok {
		t.Fatalf("poll has no timestamp: %v", body)
	}
}

func TestGameActionErrors(t *testing.T) {
	srv, _ := newTestServer(t, clockwork.NewFakeClock())

	status, body := doAction(t, srv, "ZZZZZZ", "join", map[string]any{"nickname": "Alice"})
	if status != http.StatusNotFound || body["code"] != codeRoomNotFound {
		t.Fatalf("join to unknown room: %d %v", status, body)
	}

	status, body = doAction(t, srv, "ZZZZZZ", "definitely_not_an_action", nil)
	if status != http.StatusBadRequest || body["code"] != "UNKNOWN_ACTION" {
		t.Fatalf("unknown action: %d %v", status, body)
	}

	status, body = doRequest(t, http.MethodGet, srv.URL+"/api/game/ZZZZZZ/poll", nil)
	if status != http.StatusNotFound || body["code"] != codeRoomNotFound {
		t.Fatalf("poll on unknown room: %d %v", status, body)
	}
}

func TestImageListEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, clockwork.NewFakeClock())

	resp, err := http.Get(srv.URL + "/api/images")
	if err != nil {
		t.Fatalf("get images: %v", err)
	}
	defer resp.Body.Close()

	var stripped []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stripped); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(stripped) != testConfig().rounds {
		t.Fatalf("expected %d images, got %d", testConfig().rounds, len(stripped))
	}
	for _, img := range stripped {
		if _, leaked := img["type"]; leaked {
			t.Fatalf("label leaked without includeTypes: %v", img)
		}
	}

	resp, err = http.Get(srv.URL + "/api/images?includeTypes=true")
	if err != nil {
		t.Fatalf("get images: %v", err)
	}
	defer resp.Body.Close()

	var labeled []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&labeled); err != nil {
		t.Fatalf("decode: %v", err)
	}

	for _, img := range labeled {
		label, _ := img["type"].(string)
		if label != string(LabelReal) && label != string(LabelAI) {
			t.Fatalf("missing or bad label with includeTypes: %v", img)
		}
	}

	status, body := doRequest(t, http.MethodGet, srv.URL+"/api/images?excludeIds=not-json", nil)
	if status != http.StatusBadRequest || body["code"] != "BAD_REQUEST" {
		t.Fatalf("bad excludeIds: %d %v", status, body)
	}
}

func TestJoinPageAndQR(t *testing.T) {
	srv, store := newTestServer(t, clockwork.NewFakeClock())
	room := mustCreateRoom(t, store, "host-1")

	resp, err := http.Get(fmt.Sprintf("%s/join/%s/qr", srv.URL, room.Code))
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("qr returned %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("qr content type %q", ct)
	}

	resp, err = http.Get(srv.URL + "/join/ZZZZZZ/qr")
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("qr for unknown room returned %d", resp.StatusCode)
	}
}
