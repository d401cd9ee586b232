/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// DefaultMismatchDelay is how long a mismatched pair stays face-up.
const DefaultMismatchDelay = 1200 * time.Millisecond

// EventKind identifies what happened in a Game.
type EventKind int

const (
	EventFlip EventKind = iota + 1
	EventMatch
	EventMismatch
	EventFlipBack
	EventTurn
	EventFinished
)

var eventNames = [...]string{
	EventFlip:     "flip",
	EventMatch:    "match",
	EventMismatch: "mismatch",
	EventFlipBack: "flip_back",
	EventTurn:     "turn",
	EventFinished: "finished",
}

func (k EventKind) String() string {
	if k >= EventFlip && k <= EventFinished {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is emitted to GameOptions.OnEvent after each state change.
type Event struct {
	Kind   EventKind
	Cards  []string // card IDs involved, in selection order
	PairID int      // set for EventMatch
	Player Player   // acting player; the new current player for EventTurn
}

// GameOptions configures a Game. Scheduler is required.
type GameOptions struct {
	Scheduler     Scheduler
	MismatchDelay time.Duration // zero means DefaultMismatchDelay
	Rand          *rand.Rand    // board shuffle source; nil means global
	OnEvent       func(Event)
}

// Game is the match engine: it owns the board, the roster, the turn cursor
// and the flip buffer. It is not safe for concurrent use; every call and
// every scheduled action must run on one goroutine.
type Game struct {
	cards   []Card
	index   map[string]int
	players []Player

	turn     int
	moves    int
	buffer   []int
	checking bool
	finished bool

	sched   Scheduler
	delay   time.Duration
	onEvent func(Event)

	pending Timer
	gen     uint64
}

// NewGame builds a shuffled board from pairs and a zero-score roster from
// names. Player IDs are roster positions.
func NewGame(pairs []Pair, names []string, opts GameOptions) (*Game, error) {
	if len(names) == 0 {
		return nil, errNoPlayers
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("%w: no scheduler", ErrPreconditionViolation)
	}

	cards, err := BuildBoard(pairs, opts.Rand)
	if err != nil {
		return nil, err
	}

	g := &Game{
		cards:   cards,
		index:   make(map[string]int, len(cards)),
		players: make([]Player, len(names)),
		buffer:  make([]int, 0, 2),
		sched:   opts.Scheduler,
		delay:   opts.MismatchDelay,
		onEvent: opts.OnEvent,
	}
	if g.delay <= 0 {
		g.delay = DefaultMismatchDelay
	}

	for i, c := range cards {
		g.index[c.ID] = i
	}
	for i, name := range names {
		g.players[i] = Player{ID: i, Name: name}
	}

	return g, nil
}

func (g *Game) emit(e Event) {
	if g.onEvent != nil {
		g.onEvent(e)
	}
}

// Select flips a card for the current player. It reports false, changing
// nothing, when a resolution is pending, the card is unknown, face-up or
// matched, two cards are already chosen, or the game is over. Choosing the
// second card resolves the pair before Select returns; a mismatch is
// flipped back later by the scheduler.
func (g *Game) Select(cardID string) bool {
	if g.finished || g.checking || len(g.buffer) >= 2 {
		return false
	}

	i, ok := g.index[cardID]
	if !ok {
		return false
	}

	c := &g.cards[i]
	if c.Flipped || c.Matched {
		return false
	}

	c.Flipped = true
	g.buffer = append(g.buffer, i)
	g.emit(Event{Kind: EventFlip, Cards: []string{c.ID}, Player: g.players[g.turn]})

	if len(g.buffer) == 2 {
		g.resolve()
	}

	return true
}

func (g *Game) resolve() {
	g.checking = true
	g.moves++

	first, second := g.buffer[0], g.buffer[1]
	a, b := &g.cards[first], &g.cards[second]
	ids := []string{a.ID, b.ID}

	if a.PairID == b.PairID {
		a.Matched = true
		b.Matched = true
		g.players[g.turn].Score++
		g.buffer = g.buffer[:0]
		g.checking = false

		g.emit(Event{Kind: EventMatch, Cards: ids, PairID: a.PairID, Player: g.players[g.turn]})
		g.checkComplete()

		return
	}

	g.emit(Event{Kind: EventMismatch, Cards: ids, Player: g.players[g.turn]})

	gen := g.gen
	g.pending = g.sched.AfterFunc(g.delay, func() {
		if g.gen != gen {
			return
		}
		g.flipBack(first, second)
	})
}

func (g *Game) flipBack(first, second int) {
	g.pending = nil

	g.cards[first].Flipped = false
	g.cards[second].Flipped = false
	g.buffer = g.buffer[:0]
	g.checking = false

	g.emit(Event{
		Kind:   EventFlipBack,
		Cards:  []string{g.cards[first].ID, g.cards[second].ID},
		Player: g.players[g.turn],
	})

	g.advanceTurn()
}

func (g *Game) advanceTurn() {
	if len(g.players) == 0 {
		panic(fmt.Errorf("%w: turn advance with no players", ErrPreconditionViolation))
	}

	g.turn = (g.turn + 1) % len(g.players)
	g.emit(Event{Kind: EventTurn, Player: g.players[g.turn]})
}

// checkComplete marks the game finished the first time every card is
// matched.
func (g *Game) checkComplete() {
	if g.finished || len(g.cards) == 0 {
		return
	}
	for _, c := range g.cards {
		if !c.Matched {
			return
		}
	}

	g.finished = true
	g.emit(Event{Kind: EventFinished, Player: g.players[g.turn]})
}

// Award adds quiz points to a player. Non-positive points and unknown
// players are ignored.
func (g *Game) Award(playerID, points int) bool {
	if points <= 0 || playerID < 0 || playerID >= len(g.players) {
		return false
	}
	g.players[playerID].Score += points
	return true
}

// Close cancels a pending flip-back. The game must not be used afterwards.
func (g *Game) Close() {
	g.gen++
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
}

func (g *Game) Card(id string) (Card, bool) {
	i, ok := g.index[id]
	if !ok {
		return Card{}, false
	}
	return g.cards[i], true
}

// Cards returns a copy of the board in display order.
func (g *Game) Cards() []Card {
	out := make([]Card, len(g.cards))
	copy(out, g.cards)
	return out
}

// Players returns a copy of the roster in turn order.
func (g *Game) Players() []Player {
	out := make([]Player, len(g.players))
	copy(out, g.players)
	return out
}

func (g *Game) Current() Player { return g.players[g.turn] }

func (g *Game) Turn() int { return g.turn }

func (g *Game) Moves() int { return g.moves }

func (g *Game) Checking() bool { return g.checking }

func (g *Game) Finished() bool { return g.finished }

// Flipped returns the IDs in the flip buffer, in selection order.
func (g *Game) Flipped() []string {
	ids := make([]string, len(g.buffer))
	for i, idx := range g.buffer {
		ids[i] = g.cards[idx].ID
	}
	return ids
}

// Standings ranks the current roster.
func (g *Game) Standings() Standings {
	return ResolveWinners(g.players)
}

// CardView is the client-facing card. Face-down cards hide their content
// and pair.
type CardView struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	PairID  *int   `json:"pairId,omitempty"`
	Content string `json:"content,omitempty"`
	Image   string `json:"image,omitempty"`
	HasQuiz bool   `json:"hasQuiz"`
	Flipped bool   `json:"isFlipped"`
	Matched bool   `json:"isMatched"`
}

// GameView is a render snapshot of a Game.
type GameView struct {
	Cards    []CardView `json:"cards"`
	Players  []Player   `json:"players"`
	Turn     int        `json:"turn"`
	Current  Player     `json:"current"`
	Moves    int        `json:"moves"`
	Checking bool       `json:"checking"`
	Finished bool       `json:"finished"`
	Flipped  []string   `json:"flipped"`
}

func (g *Game) Snapshot() GameView {
	cards := make([]CardView, len(g.cards))
	for i, c := range g.cards {
		cv := CardView{
			ID:      c.ID,
			Kind:    c.Kind,
			HasQuiz: c.Quiz != nil,
			Flipped: c.Flipped,
			Matched: c.Matched,
		}
		if c.Flipped || c.Matched {
			pairID := c.PairID
			cv.PairID = &pairID
			cv.Content = c.Content
			cv.Image = c.Image
		}
		cards[i] = cv
	}

	return GameView{
		Cards:    cards,
		Players:  g.Players(),
		Turn:     g.turn,
		Current:  g.players[g.turn],
		Moves:    g.moves,
		Checking: g.checking,
		Finished: g.finished,
		Flipped:  g.Flipped(),
	}
}
