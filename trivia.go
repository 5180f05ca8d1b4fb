// Quizbox Trivia Game
//
// Players share a room ID, join the room, and signal readiness. Once two
// ready signals arrive, the round starts: the shared question set is
// broadcast, a countdown runs, and answers are collected and echoed to the
// whole room until time runs out.
//
// Features:
// - WebSockets per room ID: /path/:roomid and /path/:roomid/ws
// - Rooms created explicitly; creating a taken ID is an error
// - Readiness quorum of two starts the round and the countdown
// - Question sets come from a pluggable source (embedded bank or json file)
// - Per-second countdown broadcast, single timeUp on expiry
// - Answers overwrite per player; every submission is echoed to the room
// - Errors go only to the requesting client, never the whole room
// - Players identified by cookie (playerID)
// - Random 8-char room IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`             // "createRoom", "joinRoom", "startGame", "getQuestions", "submitAnswer"
	Room   string `json:"room"`             // target room ID
	Answer string `json:"answer,omitempty"` // submitAnswer
}

// RoomCreatedMessage confirms creation to the creator only.
type RoomCreatedMessage struct {
	Type string `json:"type"` // "roomCreated"
	Room string `json:"room"`
}

// PlayerJoinedMessage announces membership changes to the whole room,
// including the joiner.
type PlayerJoinedMessage struct {
	Type     string   `json:"type"` // "playerJoined"
	Room     string   `json:"room"`
	PlayerID string   `json:"playerId"`
	Players  []string `json:"players"`
}

// PlayerLeftMessage announces that a participant's seat was released.
type PlayerLeftMessage struct {
	Type     string   `json:"type"` // "playerLeft"
	Room     string   `json:"room"`
	PlayerID string   `json:"playerId"`
	Players  []string `json:"players"`
}

// GameStartedMessage announces that the ready quorum was reached.
type GameStartedMessage struct {
	Type string `json:"type"` // "gameStarted"
	Room string `json:"room"`
}

// QuestionsMessage carries the full question set for the round.
type QuestionsMessage struct {
	Type      string     `json:"type"` // "questions"
	Room      string     `json:"room"`
	Questions []Question `json:"questions"`
}

// AnswerSubmittedMessage echoes a submission to the whole room.
type AnswerSubmittedMessage struct {
	Type     string `json:"type"` // "answerSubmitted"
	Room     string `json:"room"`
	PlayerID string `json:"playerId"`
	Answer   string `json:"answer"`
}

// TimerMessage is broadcast once per elapsed second of an active round.
type TimerMessage struct {
	Type             string `json:"type"` // "timer"
	Room             string `json:"room"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

// TimeUpMessage is broadcast exactly once when the countdown expires.
type TimeUpMessage struct {
	Type string `json:"type"` // "timeUp"
	Room string `json:"room"`
}

// ErrorMessage is sent to the single requesting client only.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	playerID string

	mu     sync.Mutex
	send   chan any
	closed bool
}

// shutdown closes the outbound queue exactly once. A client may be
// dropped from several rooms, and its connection can still issue events
// afterwards, so the closed flag keeps every later send a no-op instead
// of a send on a closed channel.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// trySend queues a message for one client without blocking, reporting
// whether it was accepted. A full queue or an already-closed client
// refuses the message rather than stalling or panicking.
func (c *Client) trySend(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) sendError(message string) {
	c.trySend(ErrorMessage{Type: "error", Message: message})
}

// Room is one isolated trivia session. All mutation happens through its
// methods while holding mu, so events against the same room apply one at
// a time while other rooms proceed independently.
type Room struct {
	id string

	mu         sync.Mutex
	clients    map[*Client]bool
	members    []string
	questions  []Question
	answers    map[string]string
	readyCount int
	timer      *roundTimer
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		clients: make(map[*Client]bool),
		answers: make(map[string]string),
	}
}

// broadcastLocked queues msg for every connected client of the room,
// dropping clients whose queues are full. Assumes rm.mu is held; callers
// therefore emit in the order their events were processed.
func (rm *Room) broadcastLocked(msg any) {
	for client := range rm.clients {
		if !client.trySend(msg) {
			delete(rm.clients, client)
			client.shutdown()
		}
	}
}

// subscribe adds a connection to the room's delivery set without touching
// membership; the creator of a room receives broadcasts before joining.
func (rm *Room) subscribe(c *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.clients[c] = true
}

// join appends the participant and announces the change to the whole
// room, joiner included. Duplicate joins are not prevented.
func (rm *Room) join(cfg *Config, c *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.clients[c] = true
	rm.members = append(rm.members, c.playerID)

	logf(cfg, "GAMES: Player %s joined room %s", c.playerID, rm.id)

	rm.broadcastLocked(PlayerJoinedMessage{
		Type:     "playerJoined",
		Room:     rm.id,
		PlayerID: c.playerID,
		Players:  append([]string(nil), rm.members...),
	})
}

// markReady counts a start signal. At quorum the round begins: the count
// resets, gameStarted goes out, and the countdown replaces any running
// timer.
func (rm *Room) markReady(cfg *Config, roundSeconds int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.readyCount++
	if rm.readyCount < readyQuorum {
		return
	}
	rm.readyCount = 0

	logf(cfg, "GAMES: Round started in room %s", rm.id)

	rm.broadcastLocked(GameStartedMessage{Type: "gameStarted", Room: rm.id})
	rm.startRoundLocked(roundSeconds, time.Second)
}

// fetchQuestions pulls a question set from the source and broadcasts it to
// the room's members. The fetch runs under the room lock, so same-room
// events queue behind it and never observe a half-updated question set;
// other rooms are unaffected. A failed fetch leaves the stored set alone
// and is reported only to the requester.
func (rm *Room) fetchQuestions(cfg *Config, source QuestionSource, c *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	questions, err := source.Questions(context.Background())
	if err != nil {
		logf(cfg, "GAMES: Question fetch failed for room %s: %v", rm.id, err)
		c.sendError("failed to fetch questions")
		return
	}

	rm.questions = questions

	rm.broadcastLocked(QuestionsMessage{
		Type:      "questions",
		Room:      rm.id,
		Questions: questions,
	})
}

// submitAnswer records the latest answer for the player, overwriting any
// earlier one, and echoes the submission to the whole room. Answers are
// not validated against the question set.
func (rm *Room) submitAnswer(c *Client, answer string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.answers[c.playerID] = answer

	rm.broadcastLocked(AnswerSubmittedMessage{
		Type:     "answerSubmitted",
		Room:     rm.id,
		PlayerID: c.playerID,
		Answer:   answer,
	})
}

// drop removes a disconnected client from the delivery set. Membership is
// pruned only when no other connection shares the playerID; recorded
// answers stay, so a finished round's tally survives a flaky client. An
// emptied room loses its countdown.
func (rm *Room) drop(cfg *Config, c *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.clients[c]; !ok {
		return
	}
	delete(rm.clients, c)

	for client := range rm.clients {
		if client.playerID == c.playerID {
			return
		}
	}

	dst := rm.members[:0]
	changed := false
	for _, id := range rm.members {
		if id == c.playerID {
			changed = true
			continue
		}
		dst = append(dst, id)
	}
	rm.members = dst

	if !changed {
		return
	}

	logf(cfg, "GAMES: Player %s left room %s", c.playerID, rm.id)

	if len(rm.members) == 0 {
		rm.cancelRoundLocked()
		return
	}

	rm.broadcastLocked(PlayerLeftMessage{
		Type:     "playerLeft",
		Room:     rm.id,
		PlayerID: c.playerID,
		Players:  append([]string(nil), rm.members...),
	})
}

// dispatch routes one inbound event. Room-scoped failures are reported to
// the requester only and never affect other rooms.
func (reg *Registry) dispatch(cfg *Config, c *Client, msg ClientMessage) {
	if msg.Room == "" {
		c.sendError("missing room id")
		return
	}

	switch msg.Type {
	case "createRoom":
		rm, err := reg.createRoom(msg.Room)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		rm.subscribe(c)
		logf(cfg, "GAMES: Room %s created by %s", msg.Room, c.playerID)
		c.trySend(RoomCreatedMessage{Type: "roomCreated", Room: msg.Room})

	case "joinRoom":
		rm, err := reg.getRoom(msg.Room)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		rm.join(cfg, c)

	case "startGame":
		rm, err := reg.getRoom(msg.Room)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		rm.markReady(cfg, int(cfg.roundDuration/time.Second))

	case "getQuestions":
		rm, err := reg.getRoom(msg.Room)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		rm.fetchQuestions(cfg, reg.source, c)

	case "submitAnswer":
		rm, err := reg.getRoom(msg.Room)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		rm.submitAnswer(c, msg.Answer)

	default:
		// ignore unknown types
	}
}

// disconnect sweeps the client out of every room it was subscribed to.
func (reg *Registry) disconnect(cfg *Config, c *Client) {
	for _, rm := range reg.allRooms() {
		rm.drop(cfg, c)
	}

	c.shutdown()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "quizbox_id"

func randomID(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, length)
	for i := range out {
		out[i] = letters[int(buf[i])%len(letters)]
	}

	return string(out)
}

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// WebSocket handler; the room acted on is carried by each event, not the
// URL, so one connection can create and join any room.
func serveWS(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		go client.writePump()
		client.readPump(cfg, reg)
	}
}

func (c *Client) readPump(cfg *Config, reg *Registry) {
	defer func() {
		reg.disconnect(cfg, c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		reg.dispatch(cfg, c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:roomid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

//go:embed assets/trivia/index.html
var triviaHTML []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(triviaHTML)
	}
}

// redirectNewRoom handles GET /path by generating a new random room ID
// (with server-side collision detection) and redirecting to /path/:roomid.
// The room itself is only created once a client sends createRoom.
func redirectNewRoom(cfg *Config, path string, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomID := reg.newRoomID()
		logf(cfg, "GAMES: Suggested room %s/%s", path, roomID)
		http.Redirect(w, r, cfg.prefix+path+"/"+roomID, http.StatusTemporaryRedirect)
	}
}

// registerTriviaGame sets up routes so that:
//   - $path                  → redirects to a new random room (8-char ID)
//   - $path/:roomid          → HTML client
//   - $path/:roomid/ws       → WebSocket, shared by all rooms
//   - $path/:roomid/qr       → PNG QR code for that room URL
func registerTriviaGame(cfg *Config, path string, source QuestionSource, mux *httprouter.Router) {
	reg := newRegistry(source)

	// Root path → redirect to new random room
	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, reg))

	// Per-room client view (HTML)
	mux.GET(cfg.prefix+path+"/:roomid", getIndexHandler(cfg))

	// Per-room websocket
	mux.GET(cfg.prefix+path+"/:roomid/ws", serveWS(cfg, reg))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)
}
