/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// ContentSource supplies question/answer pairs for a new board.
type ContentSource interface {
	Generate(ctx context.Context, topic string, count int) ([]Pair, error)
}

// Phase is the top-level screen of a session.
type Phase int

const (
	PhaseMenu Phase = iota + 1
	PhaseInstructions
	PhaseLobby
	PhaseLoading
	PhasePlaying
	PhaseFinished
)

var phaseNames = [...]string{
	PhaseMenu:         "menu",
	PhaseInstructions: "instructions",
	PhaseLobby:        "lobby",
	PhaseLoading:      "loading",
	PhasePlaying:      "playing",
	PhaseFinished:     "finished",
}

func (p Phase) String() string {
	if p >= PhaseMenu && p <= PhaseFinished {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if p < PhaseMenu || p > PhaseFinished {
		return nil, fmt.Errorf("memory: invalid phase: %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// Mode picks the default lobby roster.
type Mode int

const (
	ModeSingle Mode = iota + 1
	ModeCouple
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeCouple:
		return "couple"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeSingle && m != ModeCouple {
		return []byte(""), nil
	}
	return []byte(m.String()), nil
}

// ParseMode accepts "single" or "couple".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return ModeSingle, nil
	case "couple":
		return ModeCouple, nil
	}
	return 0, fmt.Errorf("memory: invalid mode: %q", s)
}

func (m Mode) defaultRoster() []string {
	if m == ModeCouple {
		return []string{"Pair 1 - A", "Pair 1 - B"}
	}
	return []string{"Player 1"}
}

// Ticket identifies one start request. Completing with an outdated ticket
// is a no-op.
type Ticket uint64

// SessionOptions configures a Session. Scheduler is required.
type SessionOptions struct {
	Scheduler       Scheduler
	MismatchDelay   time.Duration
	QuizTiming      QuizTiming
	ShowcaseOnMatch bool
	Rand            *rand.Rand

	// OnChange runs after timer-driven state changes.
	OnChange func()
	// OnEvent receives every match engine event.
	OnEvent func(Event)
	// OnError receives failures that have no caller to return to, such
	// as a quiz that cannot open automatically after a match.
	OnError func(error)
}

// Session is the controller for one table: menu, lobby, the running game
// and its quiz overlay. It owns every timer it starts and, like Game, must
// be driven from a single goroutine.
type Session struct {
	opts SessionOptions

	phase     Phase
	prevPhase Phase
	mode      Mode
	roomCode  string
	names     []string
	errMsg    string

	ticket    Ticket
	game      *Game
	quiz      *Quiz
	showcased map[string]bool
}

func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("%w: no scheduler", ErrPreconditionViolation)
	}

	return &Session{
		opts:      opts,
		phase:     PhaseMenu,
		mode:      ModeSingle,
		showcased: make(map[string]bool),
	}, nil
}

func (s *Session) Phase() Phase { return s.phase }

func (s *Session) Game() *Game { return s.game }

func (s *Session) Quiz() *Quiz { return s.quiz }

func (s *Session) Names() []string { return append([]string(nil), s.names...) }

// Error returns the message shown inline, if any.
func (s *Session) Error() string { return s.errMsg }

func (s *Session) notify() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}

const roomCodeChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func (s *Session) newRoomCode() string {
	code := make([]byte, 6)
	for i := range code {
		var n int
		if s.opts.Rand != nil {
			n = s.opts.Rand.IntN(len(roomCodeChars))
		} else {
			n = rand.IntN(len(roomCodeChars))
		}
		code[i] = roomCodeChars[n]
	}
	return string(code)
}

// SelectMode opens the lobby with the mode's default roster and a fresh
// room code.
func (s *Session) SelectMode(m Mode) bool {
	if s.phase != PhaseMenu && s.phase != PhaseLobby {
		return false
	}
	if m != ModeSingle && m != ModeCouple {
		return false
	}

	s.mode = m
	s.phase = PhaseLobby
	s.roomCode = s.newRoomCode()
	s.names = m.defaultRoster()
	s.errMsg = ""

	return true
}

func (s *Session) ShowInstructions() bool {
	if s.phase != PhaseMenu && s.phase != PhaseLobby {
		return false
	}
	s.prevPhase = s.phase
	s.phase = PhaseInstructions
	return true
}

func (s *Session) CloseInstructions() bool {
	if s.phase != PhaseInstructions {
		return false
	}
	s.phase = s.prevPhase
	return true
}

// AddPlayer appends a trimmed, non-empty, unique name to the lobby roster.
func (s *Session) AddPlayer(name string) bool {
	name = strings.TrimSpace(name)
	if s.phase != PhaseLobby || name == "" {
		return false
	}
	for _, n := range s.names {
		if n == name {
			return false
		}
	}
	s.names = append(s.names, name)
	return true
}

func (s *Session) RemovePlayer(name string) bool {
	if s.phase != PhaseLobby {
		return false
	}
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			return true
		}
	}
	return false
}

// BeginStart validates the roster and moves to the loading phase. The
// caller fetches content and reports back with CompleteStart. An empty
// roster is reported inline and leaves the session untouched.
func (s *Session) BeginStart() (Ticket, error) {
	if s.phase != PhaseLobby && s.phase != PhasePlaying && s.phase != PhaseFinished {
		return 0, fmt.Errorf("%w: cannot start from %s", ErrPreconditionViolation, s.phase)
	}
	if len(s.names) == 0 {
		s.errMsg = errNoPlayers.Error()
		return 0, errNoPlayers
	}

	s.teardown()
	s.phase = PhaseLoading
	s.errMsg = ""
	s.ticket++

	return s.ticket, nil
}

// CompleteStart finishes a start request. On failure the session returns
// to the lobby with the source's message and the roster intact.
func (s *Session) CompleteStart(t Ticket, pairs []Pair, genErr error) error {
	if t != s.ticket || s.phase != PhaseLoading {
		return nil
	}

	if genErr != nil {
		var ce *ContentError
		if !errors.As(genErr, &ce) {
			ce = NewContentError(genErr.Error(), genErr)
		}
		s.phase = PhaseLobby
		s.errMsg = ce.Error()
		return ce
	}

	g, err := NewGame(pairs, s.names, GameOptions{
		Scheduler:     s.opts.Scheduler,
		MismatchDelay: s.opts.MismatchDelay,
		Rand:          s.opts.Rand,
		OnEvent:       s.handleEvent,
	})
	if err != nil {
		s.phase = PhaseLobby
		s.errMsg = err.Error()
		return err
	}

	s.game = g
	s.showcased = make(map[string]bool)
	s.phase = PhasePlaying

	return nil
}

// Restart begins a new game with the same roster.
func (s *Session) Restart() (Ticket, error) {
	if s.phase != PhasePlaying && s.phase != PhaseFinished {
		return 0, fmt.Errorf("%w: no game to restart", ErrPreconditionViolation)
	}
	return s.BeginStart()
}

// ReturnToMenu abandons everything, including an in-flight start.
func (s *Session) ReturnToMenu() {
	s.teardown()
	s.ticket++
	s.phase = PhaseMenu
	s.names = nil
	s.errMsg = ""
	s.roomCode = ""
}

// Close stops every timer the session owns.
func (s *Session) Close() {
	s.teardown()
	s.ticket++
}

func (s *Session) teardown() {
	if s.quiz != nil {
		s.quiz.Cancel()
		s.quiz = nil
	}
	if s.game != nil {
		s.game.Close()
		s.game = nil
	}
}

func (s *Session) handleEvent(e Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(e)
	}

	switch e.Kind {
	case EventMatch:
		if s.opts.ShowcaseOnMatch && s.quiz == nil {
			id := fmt.Sprintf("q-%d", e.PairID)
			if c, ok := s.game.Card(id); ok && c.Quiz != nil && !s.showcased[id] {
				if err := s.openQuiz(c); err != nil && s.opts.OnError != nil {
					s.opts.OnError(fmt.Errorf("showcase %s: %w", id, err))
				}
			}
		}
	case EventFinished:
		if s.phase == PhasePlaying {
			s.phase = PhaseFinished
		}
	case EventTurn:
		s.notify()
	}
}

// SelectCard forwards a flip to the match engine. Flips are refused while
// a quiz overlay is open.
func (s *Session) SelectCard(id string) bool {
	if s.phase != PhasePlaying || s.game == nil || s.quiz != nil {
		return false
	}
	return s.game.Select(id)
}

// Showcase opens the quiz overlay for a matched card that carries a quiz.
// Each card is showcased at most once per game.
func (s *Session) Showcase(cardID string) error {
	if s.game == nil || (s.phase != PhasePlaying && s.phase != PhaseFinished) {
		return fmt.Errorf("%w: no game in progress", ErrPreconditionViolation)
	}
	if s.quiz != nil {
		return fmt.Errorf("%w: a quiz is already open", ErrPreconditionViolation)
	}

	c, ok := s.game.Card(cardID)
	switch {
	case !ok:
		return fmt.Errorf("%w: unknown card %q", ErrInsufficientInput, cardID)
	case c.Quiz == nil:
		return fmt.Errorf("%w: card %q has no quiz", ErrInvalidQuiz, cardID)
	case !c.Matched:
		return fmt.Errorf("%w: card %q is not matched", ErrPreconditionViolation, cardID)
	case s.showcased[cardID]:
		return fmt.Errorf("%w: card %q was already showcased", ErrPreconditionViolation, cardID)
	}

	return s.openQuiz(c)
}

func (s *Session) openQuiz(c Card) error {
	players := s.game.Players()
	participants := make([]Participant, len(players))
	for i, p := range players {
		participants[i] = Participant{ID: p.ID, Name: p.Name}
	}

	game := s.game
	var q *Quiz
	q, err := NewQuiz(c, *c.Quiz, participants, QuizOptions{
		Scheduler: s.opts.Scheduler,
		Timing:    s.opts.QuizTiming,
		OnResult: func(playerID int, r QuizResult) {
			if r.Correct {
				game.Award(playerID, r.Points)
			}
		},
		OnClose: func(string) {
			if s.quiz == q {
				s.quiz = nil
			}
		},
		OnChange: s.notify,
	})
	if err != nil {
		return err
	}

	s.quiz = q
	s.showcased[c.ID] = true
	q.Start()

	return nil
}

func (s *Session) SelectAnswer(playerID int, answer string) bool {
	if s.quiz == nil {
		return false
	}
	return s.quiz.Select(playerID, answer)
}

func (s *Session) FinalizeQuiz() bool {
	if s.quiz == nil {
		return false
	}
	return s.quiz.Finalize()
}

// SessionView is everything a client needs to render the table.
type SessionView struct {
	Phase     Phase      `json:"phase"`
	Mode      Mode       `json:"mode"`
	RoomCode  string     `json:"roomCode,omitempty"`
	Names     []string   `json:"names"`
	Error     string     `json:"error,omitempty"`
	Loading   bool       `json:"loading"`
	Game      *GameView  `json:"game,omitempty"`
	Quiz      *QuizView  `json:"quiz,omitempty"`
	Standings *Standings `json:"standings,omitempty"`
	Showcased []string   `json:"showcased,omitempty"`
}

func (s *Session) Snapshot() SessionView {
	v := SessionView{
		Phase:    s.phase,
		Mode:     s.mode,
		RoomCode: s.roomCode,
		Names:    s.Names(),
		Error:    s.errMsg,
		Loading:  s.phase == PhaseLoading,
	}

	if s.game != nil {
		gv := s.game.Snapshot()
		v.Game = &gv
		if s.phase == PhaseFinished {
			st := s.game.Standings()
			v.Standings = &st
		}
		for _, c := range s.game.cards {
			if s.showcased[c.ID] {
				v.Showcased = append(v.Showcased, c.ID)
			}
		}
	}
	if s.quiz != nil {
		qv := s.quiz.Snapshot()
		v.Quiz = &qv
	}

	return v
}
