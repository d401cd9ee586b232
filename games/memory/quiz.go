/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Stage is the lifecycle position of a quiz overlay.
type Stage int

const (
	StageIdle Stage = iota
	StageReveal
	StagePrep
	StageQuestion
	StageScoring
	StageResolved
	StageClosed
)

var stageNames = [...]string{
	StageIdle:     "idle",
	StageReveal:   "reveal",
	StagePrep:     "prep",
	StageQuestion: "question",
	StageScoring:  "scoring",
	StageResolved: "resolved",
	StageClosed:   "closed",
}

func (s Stage) String() string {
	if s >= StageIdle && s <= StageClosed {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if s < StageIdle || s > StageClosed {
		return nil, fmt.Errorf("memory: invalid stage: %d", int(s))
	}
	return []byte(stageNames[s]), nil
}

// QuizTiming holds the pacing constants of the overlay. Zero fields take
// the DefaultQuizTiming value.
type QuizTiming struct {
	RevealDelay   time.Duration // artwork transition before the prep countdown
	MetaDelay     time.Duration // card title appears this long into prep
	PrepSeconds   int
	AnswerSeconds int
	Tick          time.Duration
	ResolvedHold  time.Duration
	MaxPoints     int
}

var DefaultQuizTiming = QuizTiming{
	RevealDelay:   1000 * time.Millisecond,
	MetaDelay:     200 * time.Millisecond,
	PrepSeconds:   3,
	AnswerSeconds: 20,
	Tick:          time.Second,
	ResolvedHold:  3000 * time.Millisecond,
	MaxPoints:     100,
}

func (t QuizTiming) withDefaults() QuizTiming {
	d := DefaultQuizTiming
	if t.RevealDelay > 0 {
		d.RevealDelay = t.RevealDelay
	}
	if t.MetaDelay > 0 {
		d.MetaDelay = t.MetaDelay
	}
	if t.PrepSeconds > 0 {
		d.PrepSeconds = t.PrepSeconds
	}
	if t.AnswerSeconds > 0 {
		d.AnswerSeconds = t.AnswerSeconds
	}
	if t.Tick > 0 {
		d.Tick = t.Tick
	}
	if t.ResolvedHold > 0 {
		d.ResolvedHold = t.ResolvedHold
	}
	if t.MaxPoints > 0 {
		d.MaxPoints = t.MaxPoints
	}
	return d
}

// Points returns the award for a correct answer with remaining seconds
// left on the shared clock.
func (t QuizTiming) Points(remaining int) int {
	t = t.withDefaults()
	if remaining < 0 {
		remaining = 0
	}
	p := int(math.Round(float64(remaining) / float64(t.AnswerSeconds) * float64(t.MaxPoints)))
	if p < 0 {
		return 0
	}
	return p
}

// Participant is a player taking part in a quiz.
type Participant struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// QuizOptions configures a Quiz. Scheduler is required.
type QuizOptions struct {
	Scheduler Scheduler
	Timing    QuizTiming

	// OnResult runs once per participant when results are finalized.
	OnResult func(playerID int, r QuizResult)
	// OnClose runs after the resolved display hold.
	OnClose func(cardID string)
	// OnChange runs after every timer-driven transition or tick.
	OnChange func()
}

// Quiz is the timed group quiz shown over one card. Like Game it must be
// driven from a single goroutine.
type Quiz struct {
	id      string
	cardID  string
	title   string
	image   string
	form    QuizForm
	players []Participant
	timing  QuizTiming

	stage       Stage
	metaVisible bool
	prepLeft    int
	timeLeft    int
	selections  map[int]string
	results     map[int]QuizResult
	finalized   bool

	sched     Scheduler
	timer     Timer
	metaTimer Timer
	gen       uint64

	onResult func(int, QuizResult)
	onClose  func(string)
	onChange func()
}

// NewQuiz prepares an overlay for card. It does not start any timer until
// Start is called.
func NewQuiz(card Card, form QuizForm, players []Participant, opts QuizOptions) (*Quiz, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, errNoPlayers
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("%w: no scheduler", ErrPreconditionViolation)
	}

	ps := make([]Participant, len(players))
	copy(ps, players)

	return &Quiz{
		id:         uuid.NewString(),
		cardID:     card.ID,
		title:      card.Content,
		image:      card.Image,
		form:       form,
		players:    ps,
		timing:     opts.Timing.withDefaults(),
		selections: make(map[int]string, len(ps)),
		sched:      opts.Scheduler,
		onResult:   opts.OnResult,
		onClose:    opts.OnClose,
		onChange:   opts.OnChange,
	}, nil
}

func (q *Quiz) ID() string { return q.id }

func (q *Quiz) CardID() string { return q.cardID }

func (q *Quiz) Stage() Stage { return q.stage }

func (q *Quiz) Remaining() int { return q.timeLeft }

// after schedules fn against the current generation. A generation bump
// turns already scheduled actions into no-ops.
func (q *Quiz) after(d time.Duration, fn func()) Timer {
	gen := q.gen
	return q.sched.AfterFunc(d, func() {
		if q.gen != gen {
			return
		}
		fn()
		if q.onChange != nil {
			q.onChange()
		}
	})
}

// stopTimers also bumps the generation: a timer that already fired and
// queued its callback cannot be stopped, only outdated.
func (q *Quiz) stopTimers() {
	q.gen++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if q.metaTimer != nil {
		q.metaTimer.Stop()
		q.metaTimer = nil
	}
}

// Start enters the reveal stage.
func (q *Quiz) Start() bool {
	if q.stage != StageIdle {
		return false
	}

	q.stage = StageReveal
	q.timer = q.after(q.timing.RevealDelay, q.enterPrep)

	return true
}

func (q *Quiz) enterPrep() {
	q.stage = StagePrep
	q.prepLeft = q.timing.PrepSeconds
	q.metaTimer = q.after(q.timing.MetaDelay, func() {
		q.metaTimer = nil
		q.metaVisible = true
	})
	q.timer = q.after(q.timing.Tick, q.prepTick)
}

func (q *Quiz) prepTick() {
	q.prepLeft--
	if q.prepLeft > 0 {
		q.timer = q.after(q.timing.Tick, q.prepTick)
		return
	}

	q.prepLeft = 0
	q.enterQuestion()
}

func (q *Quiz) enterQuestion() {
	q.stage = StageQuestion
	q.metaVisible = true
	q.timeLeft = q.timing.AnswerSeconds
	q.timer = q.after(q.timing.Tick, q.answerTick)
}

func (q *Quiz) answerTick() {
	q.timeLeft--
	if q.timeLeft > 0 {
		q.timer = q.after(q.timing.Tick, q.answerTick)
		return
	}

	q.timeLeft = 0
	q.timer = nil
	q.finalize()
}

// Select records a player's choice. Choices can change until results are
// finalized. Unknown players and answers that are not candidates are
// ignored.
func (q *Quiz) Select(playerID int, answer string) bool {
	if q.stage != StageQuestion || q.finalized {
		return false
	}
	if !q.hasPlayer(playerID) {
		return false
	}
	if _, ok := q.form.answer(answer); !ok {
		return false
	}

	q.selections[playerID] = answer
	return true
}

func (q *Quiz) hasPlayer(id int) bool {
	for _, p := range q.players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Finalize scores the quiz now instead of waiting for the clock. It
// reports false if the question is not showing or results already exist.
func (q *Quiz) Finalize() bool {
	if q.stage != StageQuestion || q.finalized {
		return false
	}
	q.finalize()
	return true
}

func (q *Quiz) finalize() {
	if q.finalized {
		return
	}
	q.finalized = true
	q.stopTimers()
	q.stage = StageScoring

	points := q.timing.Points(q.timeLeft)

	q.results = make(map[int]QuizResult, len(q.players))
	for _, p := range q.players {
		var r QuizResult
		if choice, ok := q.selections[p.ID]; ok {
			if a, ok := q.form.answer(choice); ok && a.Correct {
				r = QuizResult{Correct: true, Points: points}
			}
		}
		q.results[p.ID] = r

		if q.onResult != nil {
			q.onResult(p.ID, r)
		}
	}

	q.stage = StageResolved
	q.timer = q.after(q.timing.ResolvedHold, q.close)
}

func (q *Quiz) close() {
	q.timer = nil
	q.stage = StageClosed
	if q.onClose != nil {
		q.onClose(q.cardID)
	}
}

// Cancel tears the overlay down without firing any further callbacks.
func (q *Quiz) Cancel() {
	q.stopTimers()
	q.stage = StageClosed
}

// Results returns the finalized results keyed by player ID, or nil.
func (q *Quiz) Results() map[int]QuizResult {
	if q.results == nil {
		return nil
	}
	out := make(map[int]QuizResult, len(q.results))
	for k, v := range q.results {
		out[k] = v
	}
	return out
}

// QuizView is a render snapshot. Correctness is only revealed once the
// quiz is resolved.
type QuizView struct {
	ID              string             `json:"id"`
	CardID          string             `json:"cardId"`
	Title           string             `json:"title"`
	Image           string             `json:"image,omitempty"`
	Stage           Stage              `json:"stage"`
	MetaVisible     bool               `json:"metaVisible"`
	PrepLeft        int                `json:"prepLeft"`
	TimeLeft        int                `json:"timeLeft"`
	AnswerSeconds   int                `json:"answerSeconds"`
	ProjectedPoints int                `json:"projectedPoints"`
	Prompt          string             `json:"prompt,omitempty"`
	Answers         []string           `json:"answers,omitempty"`
	Correct         []string           `json:"correct,omitempty"`
	Explanation     string             `json:"explanation,omitempty"`
	Participants    []Participant      `json:"participants"`
	Selections      map[int]string     `json:"selections"`
	Results         map[int]QuizResult `json:"results,omitempty"`
}

func (q *Quiz) Snapshot() QuizView {
	v := QuizView{
		ID:            q.id,
		CardID:        q.cardID,
		Title:         q.title,
		Image:         q.image,
		Stage:         q.stage,
		MetaVisible:   q.metaVisible,
		PrepLeft:      q.prepLeft,
		TimeLeft:      q.timeLeft,
		AnswerSeconds: q.timing.AnswerSeconds,
		Participants:  append([]Participant(nil), q.players...),
		Selections:    make(map[int]string, len(q.selections)),
		Results:       q.Results(),
	}

	for k, s := range q.selections {
		v.Selections[k] = s
	}

	if q.stage >= StageQuestion {
		v.Prompt = q.form.Prompt
		for _, a := range q.form.Answers {
			v.Answers = append(v.Answers, a.Content)
		}
	}
	if q.stage == StageQuestion {
		v.ProjectedPoints = q.timing.Points(q.timeLeft)
	}
	if q.finalized {
		for _, a := range q.form.Answers {
			if a.Correct {
				v.Correct = append(v.Correct, a.Content)
			}
		}
		v.Explanation = q.form.Explanation
	}

	return v
}

// SoloQuiz is the single-player form of the overlay. It runs the same
// stages and timing and scores one player.
type SoloQuiz struct {
	*Quiz
	player Participant
}

func NewSoloQuiz(card Card, form QuizForm, player Participant, opts QuizOptions) (*SoloQuiz, error) {
	q, err := NewQuiz(card, form, []Participant{player}, opts)
	if err != nil {
		return nil, err
	}
	return &SoloQuiz{Quiz: q, player: player}, nil
}

// Choose selects an answer for the solo player.
func (s *SoloQuiz) Choose(answer string) bool {
	return s.Select(s.player.ID, answer)
}

// Result returns the solo player's result once finalized.
func (s *SoloQuiz) Result() (QuizResult, bool) {
	r, ok := s.results[s.player.ID]
	return r, ok
}
