// Quizmatch Memory Game
//
// One table of players shares a board of face-down cards. Half the cards
// carry a question, the other half its answer. Players take turns flipping
// two cards; a matching question and answer scores a point and keeps the
// turn, anything else is flipped back and the turn passes on. A matched
// question can be showcased as a timed multiple choice quiz for the whole
// roster, worth up to 100 extra points for a fast correct answer.
//
// Features:
// - WebSockets per game ID: /path/:gameid and /path/:gameid/ws
// - Every device in a room sees the same table and may act for it
// - Cards come from the configured content source when a game starts
// - Each room runs one goroutine that owns its session; timers and
//   content results are posted back into it
// - Clients identified by cookie (clientID)
// - Rooms auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/quizmatch/games/memory"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	generateTimeout = 60 * time.Second
	maxMessageSize  = 4096
)

type Client struct {
	conn     *websocket.Conn
	send     chan any
	clientID string
}

type intent struct {
	client *Client
	msg    ClientMessage
}

// Room is one game table. Everything except lastActive is owned by the
// goroutine in run.
type Room struct {
	id     string
	cfg    *Config
	source memory.ContentSource

	session *memory.Session
	clients map[*Client]bool
	topic   string

	register chan *Client
	unreg    chan *Client
	intents  chan intent
	actions  chan func()
	done     chan struct{}
	stopOnce sync.Once

	cancelLoad context.CancelFunc

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
}

// roomScheduler runs timer callbacks on the room goroutine.
type roomScheduler struct {
	room *Room
}

func (s roomScheduler) AfterFunc(d time.Duration, fn func()) memory.Timer {
	return time.AfterFunc(d, func() {
		s.room.post(fn)
	})
}

func newRoom(cfg *Config, gameID string, source memory.ContentSource, sched memory.Scheduler) (*Room, error) {
	now := time.Now()

	r := &Room{
		id:         gameID,
		cfg:        cfg,
		source:     source,
		clients:    make(map[*Client]bool),
		topic:      cfg.topic,
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		intents:    make(chan intent),
		actions:    make(chan func(), 16),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}

	if sched == nil {
		sched = roomScheduler{room: r}
	}

	session, err := memory.NewSession(memory.SessionOptions{
		Scheduler:       sched,
		MismatchDelay:   cfg.mismatchDelay,
		ShowcaseOnMatch: cfg.showcaseOnMatch,
		OnChange:        r.broadcastState,
		OnEvent:         r.handleEvent,
		OnError: func(err error) {
			logf(cfg, "GAMES: Error in %s: %v", gameID, err)
		},
	})
	if err != nil {
		return nil, err
	}
	r.session = session

	return r, nil
}

func (r *Room) run() {
	defer r.shutdown()

	for {
		select {
		case c := <-r.register:
			r.touch()
			r.clients[c] = true
			logf(r.cfg, "GAMES: Client %s joined %s (%d connected)", c.clientID, r.id, len(r.clients))

			r.sendTo(c, r.stateMessage())

		case c := <-r.unreg:
			r.touch()
			if _, ok := r.clients[c]; ok {
				delete(r.clients, c)
				close(c.send)
				logf(r.cfg, "GAMES: Client %s left %s (%d connected)", c.clientID, r.id, len(r.clients))
			}

		case in := <-r.intents:
			r.touch()
			r.handleIntent(in)

		case fn := <-r.actions:
			fn()

		case <-r.done:
			return
		}
	}
}

// post queues fn for the room goroutine. It is dropped once the room stops.
func (r *Room) post(fn func()) {
	select {
	case r.actions <- fn:
	case <-r.done:
	}
}

func (r *Room) touch() {
	r.mu.Lock()
	r.lastActive = time.Now()
	r.mu.Unlock()
}

func (r *Room) idleSince() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastActive
}

// stop ends the room goroutine, which then disconnects every client.
func (r *Room) stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

func (r *Room) shutdown() {
	if r.cancelLoad != nil {
		r.cancelLoad()
	}
	r.session.Close()

	for c := range r.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(r.clients, c)
	}
}

func (r *Room) sendTo(c *Client, msg any) {
	if !r.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(r.clients, c)
		close(c.send)
	}
}

func (r *Room) broadcast(msg any) {
	for c := range r.clients {
		r.sendTo(c, msg)
	}
}

func (r *Room) broadcastState() {
	r.broadcast(r.stateMessage())
}

func (r *Room) handleEvent(e memory.Event) {
	switch e.Kind {
	case memory.EventMatch:
		logf(r.cfg, "GAMES: %q matched pair %d in %s", e.Player.Name, e.PairID, r.id)
	case memory.EventFinished:
		st := r.session.Game().Standings()
		logf(r.cfg, "GAMES: Game in %s finished, top score %d", r.id, st.MaxScore)
	}

	r.broadcast(newEventMessage(e))
}

// startGame runs begin and, if it hands out a ticket, fetches content in the
// background and completes the start on the room goroutine.
func (r *Room) startGame(begin func() (memory.Ticket, error)) error {
	ticket, err := begin()
	if err != nil {
		return err
	}

	if r.cancelLoad != nil {
		r.cancelLoad()
	}
	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	r.cancelLoad = cancel

	topic, count := r.topic, r.cfg.pairs
	logf(r.cfg, "CONTENT: Requesting %d pairs about %q for %s", count, topic, r.id)

	go func() {
		startTime := time.Now()
		pairs, err := r.source.Generate(ctx, topic, count)

		r.post(func() {
			cancel()

			if err != nil {
				logf(r.cfg, "CONTENT: Generation for %s failed after %s: %v", r.id, time.Since(startTime).Round(time.Millisecond), err)
			} else {
				logf(r.cfg, "CONTENT: Received %d pairs for %s in %s", len(pairs), r.id, time.Since(startTime).Round(time.Millisecond))
			}

			if err := r.session.CompleteStart(ticket, pairs, err); err != nil {
				logf(r.cfg, "GAMES: Could not start game in %s: %v", r.id, err)
			}

			r.broadcastState()
		})
	}()

	return nil
}

func (r *Room) cancelStart() {
	if r.cancelLoad != nil {
		r.cancelLoad()
		r.cancelLoad = nil
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const clientCookieName = "quizmatch_id"

func getOrSetClientID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(clientCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     clientCookieName,
		Value:    id,
		Path:     cfg.prefix + "/",
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// RoomManager holds a set of rooms keyed by game ID, so each $path/$gameid
// is its own isolated table.
type RoomManager struct {
	cfg         *Config
	source      memory.ContentSource
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
	stopReaper  chan struct{}
	stopOnce    sync.Once
}

func newRoomManager(cfg *Config, source memory.ContentSource) *RoomManager {
	rm := &RoomManager{
		cfg:         cfg,
		source:      source,
		rooms:       make(map[string]*Room),
		idleTimeout: cfg.sessionTimeout,
		stopReaper:  make(chan struct{}),
	}
	if rm.idleTimeout > 0 {
		go rm.reaperLoop()
	}
	return rm
}

func (rm *RoomManager) getRoom(gameID string) (*Room, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if room, ok := rm.rooms[gameID]; ok {
		return room, nil
	}

	room, err := newRoom(rm.cfg, gameID, rm.source, nil)
	if err != nil {
		return nil, err
	}
	rm.rooms[gameID] = room
	go room.run()

	return room, nil
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing rooms.
func (rm *RoomManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		rm.mu.Lock()
		_, exists := rm.rooms[id]
		rm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes rooms that have been idle longer than idleTimeout.
func (rm *RoomManager) reaperLoop() {
	ticker := time.NewTicker(rm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rm.reap(time.Now().Add(-rm.idleTimeout))
		case <-rm.stopReaper:
			return
		}
	}
}

func (rm *RoomManager) reap(cutoff time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	n := 0
	for id, room := range rm.rooms {
		if room.idleSince().Before(cutoff) {
			delete(rm.rooms, id)
			room.stop()
			n++
			logf(rm.cfg, "GAMES: Reaped idle game %s", id)
		}
	}

	return n
}

// closeAll stops the reaper and every room.
func (rm *RoomManager) closeAll() {
	rm.stopOnce.Do(func() {
		close(rm.stopReaper)
	})

	rm.mu.Lock()
	defer rm.mu.Unlock()

	for id, room := range rm.rooms {
		delete(rm.rooms, id)
		room.stop()
	}
}

// WebSocket handler that picks the room based on :gameid
func serveWSForManager(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		clientID := getOrSetClientID(cfg, w, r)

		room, err := rm.getRoom(gameID)
		if err != nil {
			logf(cfg, "ERROR: Could not open game %s: %v", gameID, err)
			http.Error(w, "unable to open game", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Websocket upgrade for %s failed: %v", realIP(r), err)
			return
		}
		conn.SetReadLimit(maxMessageSize)

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			clientID: clientID,
		}

		select {
		case room.register <- client:
		case <-room.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(room)
	}
}

func (c *Client) readPump(room *Room) {
	defer func() {
		select {
		case room.unreg <- c:
		case <-room.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case room.intents <- intent{client: c, msg: msg}:
		case <-room.done:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		png, err := qrcode.Encode(gameURL(r), qrcode.Medium, 320)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// gameURL derives the shareable game URL from a request to .../:gameid/qr,
// respecting TLS and X-Forwarded-Proto.
func gameURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")
}

func getIndexHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := assets.ReadFile("assets/memory/index.html")
		if err != nil {
			errs <- err
			http.Error(w, "client unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_ = getOrSetClientID(cfg, w, r)

		if _, err := w.Write(data); err != nil {
			errs <- err
		}
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := rm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s for %s", path, gameID, realIP(r))
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerMemoryGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerMemoryGame(cfg *Config, path string, source memory.ContentSource, mux *httprouter.Router, errs chan<- error) *RoomManager {
	rm := newRoomManager(cfg, source)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, rm))

	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg, errs))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, rm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler(cfg))

	return rm
}
