package memory

import (
	"errors"
	"testing"
	"time"
)

var testForm = QuizForm{
	Prompt: "Which planet is largest?",
	Answers: []QuizAnswer{
		{Content: "Mars"},
		{Content: "Jupiter", Correct: true},
		{Content: "Venus"},
	},
	Explanation: "Jupiter is the largest planet.",
}

type quizHarness struct {
	quiz    *Quiz
	sched   *ManualScheduler
	results map[int][]QuizResult
	closed  []string
	changes int
}

func newHarness(t *testing.T, players ...Participant) *quizHarness {
	t.Helper()
	h := &quizHarness{sched: NewManualScheduler(), results: map[int][]QuizResult{}}

	q, err := NewQuiz(Card{ID: "q-3", Content: "Planets"}, testForm, players, QuizOptions{
		Scheduler: h.sched,
		OnResult:  func(id int, r QuizResult) { h.results[id] = append(h.results[id], r) },
		OnClose:   func(id string) { h.closed = append(h.closed, id) },
		OnChange:  func() { h.changes++ },
	})
	if err != nil {
		t.Fatalf("NewQuiz: %v", err)
	}
	h.quiz = q
	return h
}

var (
	alice = Participant{ID: 0, Name: "Alice"}
	bob   = Participant{ID: 1, Name: "Bob"}
	carol = Participant{ID: 2, Name: "Carol"}
)

// toQuestion runs the reveal and the prep countdown.
func (h *quizHarness) toQuestion(t *testing.T) {
	t.Helper()
	h.quiz.Start()
	h.sched.Advance(4 * time.Second)
	if h.quiz.Stage() != StageQuestion {
		t.Fatalf("stage = %v, want question", h.quiz.Stage())
	}
}

func TestQuizStageTimeline(t *testing.T) {
	h := newHarness(t, alice)
	q := h.quiz

	if q.Stage() != StageIdle {
		t.Fatalf("stage before Start = %v", q.Stage())
	}
	if !q.Start() || q.Start() {
		t.Fatal("Start should succeed exactly once")
	}
	if q.Stage() != StageReveal {
		t.Fatalf("stage = %v, want reveal", q.Stage())
	}

	h.sched.Advance(999 * time.Millisecond)
	if q.Stage() != StageReveal {
		t.Fatalf("left reveal early: %v", q.Stage())
	}

	h.sched.Advance(time.Millisecond)
	v := q.Snapshot()
	if v.Stage != StagePrep || v.PrepLeft != 3 || v.MetaVisible {
		t.Fatalf("at 1s: %+v", v)
	}
	if v.Prompt != "" || len(v.Answers) != 0 {
		t.Error("prompt visible before the question stage")
	}

	h.sched.Advance(200 * time.Millisecond)
	if !q.Snapshot().MetaVisible {
		t.Error("meta not visible at 1.2s")
	}

	for _, want := range []int{2, 1} {
		h.sched.Advance(time.Second)
		if got := q.Snapshot().PrepLeft; got != want {
			t.Errorf("prep countdown = %d, want %d", got, want)
		}
	}

	h.sched.Advance(800 * time.Millisecond)
	v = q.Snapshot()
	if v.Stage != StageQuestion || v.TimeLeft != 20 || v.ProjectedPoints != 100 {
		t.Fatalf("at 4s: %+v", v)
	}
	if v.Prompt != testForm.Prompt || len(v.Answers) != 3 || len(v.Correct) != 0 {
		t.Errorf("question view = %+v", v)
	}

	h.sched.Advance(5 * time.Second)
	if got := q.Remaining(); got != 15 {
		t.Errorf("remaining = %d, want 15", got)
	}
	if h.changes == 0 {
		t.Error("OnChange never ran")
	}
}

func TestQuizScoring(t *testing.T) {
	testCases := []struct {
		name    string
		elapsed time.Duration
		answers map[int]string
		want    map[int]QuizResult
	}{
		{
			name:    "correct with full time",
			answers: map[int]string{0: "Jupiter"},
			want:    map[int]QuizResult{0: {Correct: true, Points: 100}, 1: {}, 2: {}},
		},
		{
			name:    "mixed after five seconds",
			elapsed: 5 * time.Second,
			answers: map[int]string{0: "Jupiter", 1: "Mars", 2: "Jupiter"},
			want:    map[int]QuizResult{0: {Correct: true, Points: 75}, 1: {}, 2: {Correct: true, Points: 75}},
		},
		{
			name:    "incorrect ignores remaining time",
			answers: map[int]string{0: "Venus", 1: "Mars", 2: "Mars"},
			want:    map[int]QuizResult{0: {}, 1: {}, 2: {}},
		},
		{
			name:    "one second left",
			elapsed: 19 * time.Second,
			answers: map[int]string{1: "Jupiter"},
			want:    map[int]QuizResult{0: {}, 1: {Correct: true, Points: 5}, 2: {}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, alice, bob, carol)
			h.toQuestion(t)

			for id, a := range tc.answers {
				if !h.quiz.Select(id, a) {
					t.Fatalf("Select(%d, %q) refused", id, a)
				}
			}
			h.sched.Advance(tc.elapsed)

			if !h.quiz.Finalize() {
				t.Fatal("Finalize refused")
			}
			got := h.quiz.Results()
			for id, want := range tc.want {
				if got[id] != want {
					t.Errorf("player %d: %+v, want %+v", id, got[id], want)
				}
			}
		})
	}
}

func TestQuizTimeoutAutoFinalizes(t *testing.T) {
	h := newHarness(t, alice, bob)
	h.toQuestion(t)

	h.quiz.Select(0, "Jupiter")
	h.sched.Advance(19 * time.Second)
	if h.quiz.Stage() != StageQuestion {
		t.Fatalf("stage at 1s left = %v", h.quiz.Stage())
	}

	h.sched.Advance(time.Second)
	if h.quiz.Stage() != StageResolved {
		t.Fatalf("stage after timeout = %v, want resolved", h.quiz.Stage())
	}
	for id, r := range h.quiz.Results() {
		if r.Points != 0 {
			t.Errorf("player %d got %d points at timeout", id, r.Points)
		}
	}
	if r := h.quiz.Results()[1]; r.Correct {
		t.Error("unanswered player marked correct")
	}
	if h.quiz.Select(1, "Jupiter") {
		t.Error("Select accepted after finalization")
	}
}

func TestQuizFinalizeOnce(t *testing.T) {
	h := newHarness(t, alice, bob)
	h.toQuestion(t)

	h.quiz.Select(0, "Jupiter")
	if !h.quiz.Finalize() {
		t.Fatal("first Finalize refused")
	}
	if h.quiz.Finalize() {
		t.Error("second Finalize accepted")
	}
	h.sched.Advance(time.Minute)

	if len(h.results[0]) != 1 || len(h.results[1]) != 1 {
		t.Fatalf("OnResult calls = %v, want one per player", h.results)
	}
	if h.results[0][0] != (QuizResult{Correct: true, Points: 100}) {
		t.Errorf("alice = %+v", h.results[0][0])
	}
	if len(h.closed) != 1 || h.closed[0] != "q-3" {
		t.Errorf("closed = %v, want [q-3]", h.closed)
	}
}

func TestQuizResolvedHold(t *testing.T) {
	h := newHarness(t, alice)
	h.toQuestion(t)
	h.quiz.Finalize()

	v := h.quiz.Snapshot()
	if len(v.Correct) != 1 || v.Correct[0] != "Jupiter" || v.Explanation == "" {
		t.Errorf("resolved view = %+v", v)
	}

	h.sched.Advance(2999 * time.Millisecond)
	if len(h.closed) != 0 {
		t.Fatal("closed before the hold elapsed")
	}
	h.sched.Advance(time.Millisecond)
	if len(h.closed) != 1 || h.quiz.Stage() != StageClosed {
		t.Errorf("closed = %v stage = %v", h.closed, h.quiz.Stage())
	}
}

func TestQuizSelectRules(t *testing.T) {
	h := newHarness(t, alice)
	h.quiz.Start()

	if h.quiz.Select(0, "Jupiter") {
		t.Error("Select accepted during reveal")
	}
	if h.quiz.Finalize() {
		t.Error("Finalize accepted during reveal")
	}

	h.sched.Advance(4 * time.Second)
	if h.quiz.Select(9, "Jupiter") {
		t.Error("Select accepted for unknown player")
	}
	if h.quiz.Select(0, "Pluto") {
		t.Error("Select accepted an answer that is not a candidate")
	}
	if !h.quiz.Select(0, "Mars") || !h.quiz.Select(0, "Jupiter") {
		t.Fatal("changing a selection was refused")
	}
	h.quiz.Finalize()
	if r := h.quiz.Results()[0]; !r.Correct {
		t.Errorf("last selection should count: %+v", r)
	}
}

func TestQuizCancel(t *testing.T) {
	h := newHarness(t, alice)
	h.quiz.Start()
	h.sched.Advance(2 * time.Second)

	h.quiz.Cancel()
	if h.sched.Pending() != 0 {
		t.Errorf("pending timers after Cancel = %d", h.sched.Pending())
	}
	h.sched.Advance(time.Minute)

	if len(h.results) != 0 || len(h.closed) != 0 {
		t.Errorf("callbacks after Cancel: results=%v closed=%v", h.results, h.closed)
	}
	if h.quiz.Stage() != StageClosed {
		t.Errorf("stage = %v, want closed", h.quiz.Stage())
	}
}

func TestNewQuizValidation(t *testing.T) {
	sched := NewManualScheduler()
	bad := QuizForm{Prompt: "p", Answers: []QuizAnswer{{Content: "a"}, {Content: "b"}}}

	if _, err := NewQuiz(Card{ID: "q-0"}, bad, []Participant{alice}, QuizOptions{Scheduler: sched}); !errors.Is(err, ErrInvalidQuiz) {
		t.Errorf("no correct answer: err = %v", err)
	}
	if _, err := NewQuiz(Card{ID: "q-0"}, testForm, nil, QuizOptions{Scheduler: sched}); !errors.Is(err, ErrInsufficientInput) {
		t.Errorf("no players: err = %v", err)
	}
	if _, err := NewQuiz(Card{ID: "q-0"}, testForm, []Participant{alice}, QuizOptions{}); !errors.Is(err, ErrPreconditionViolation) {
		t.Errorf("no scheduler: err = %v", err)
	}
}

func TestQuizPoints(t *testing.T) {
	timing := QuizTiming{}
	testCases := map[int]int{20: 100, 19: 95, 10: 50, 1: 5, 0: 0, -4: 0}
	for remaining, want := range testCases {
		if got := timing.Points(remaining); got != want {
			t.Errorf("Points(%d) = %d, want %d", remaining, got, want)
		}
	}

	custom := QuizTiming{AnswerSeconds: 30, MaxPoints: 1000}
	if got := custom.Points(10); got != 333 {
		t.Errorf("custom Points(10) = %d, want 333", got)
	}
}

func TestSoloQuiz(t *testing.T) {
	sched := NewManualScheduler()
	closed := false

	s, err := NewSoloQuiz(Card{ID: "q-1"}, testForm, bob, QuizOptions{
		Scheduler: sched,
		OnClose:   func(string) { closed = true },
	})
	if err != nil {
		t.Fatalf("NewSoloQuiz: %v", err)
	}

	s.Start()
	sched.Advance(4 * time.Second)
	if _, ok := s.Result(); ok {
		t.Error("result available before finalization")
	}

	s.Choose("Jupiter")
	sched.Advance(10 * time.Second)
	s.Finalize()

	r, ok := s.Result()
	if !ok || r != (QuizResult{Correct: true, Points: 50}) {
		t.Errorf("Result() = %+v, %v", r, ok)
	}

	sched.Advance(3 * time.Second)
	if !closed {
		t.Error("solo quiz did not close after the hold")
	}
}

// queuedScheduler delivers fired timers into a queue drained later, the
// way the room goroutine receives posted callbacks. Once a timer has fired
// its Stop reports false and the callback still runs when drained.
type queuedScheduler struct {
	clock  *ManualScheduler
	queued []func()
}

func (s *queuedScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return s.clock.AfterFunc(d, func() {
		s.queued = append(s.queued, fn)
	})
}

func (s *queuedScheduler) fire(d time.Duration) {
	s.clock.Advance(d)
}

func (s *queuedScheduler) drain() {
	for len(s.queued) > 0 {
		fn := s.queued[0]
		s.queued = s.queued[1:]
		fn()
	}
}

func TestQuizFinalizeOutdatesQueuedTick(t *testing.T) {
	sched := &queuedScheduler{clock: NewManualScheduler()}
	changes := 0
	closed := 0

	q, err := NewQuiz(Card{ID: "q-0"}, testForm, []Participant{alice}, QuizOptions{
		Scheduler: sched,
		OnClose:   func(string) { closed++ },
		OnChange:  func() { changes++ },
	})
	if err != nil {
		t.Fatalf("NewQuiz: %v", err)
	}

	q.Start()
	for range 4 {
		sched.fire(time.Second)
		sched.drain()
	}
	if q.Stage() != StageQuestion {
		t.Fatalf("stage = %v, want question", q.Stage())
	}
	for range 5 {
		sched.fire(time.Second)
		sched.drain()
	}

	// the sixth tick fires but waits in the queue
	sched.fire(time.Second)
	if len(sched.queued) != 1 {
		t.Fatalf("queued callbacks = %d, want 1", len(sched.queued))
	}

	q.Select(0, "Jupiter")
	if !q.Finalize() {
		t.Fatal("Finalize refused")
	}
	left := q.Remaining()
	before := changes

	sched.drain()

	if q.Remaining() != left || q.Stage() != StageResolved {
		t.Errorf("outdated tick ran: remaining %d -> %d, stage %v", left, q.Remaining(), q.Stage())
	}
	if changes != before {
		t.Errorf("outdated tick notified %d times", changes-before)
	}
	if n := sched.clock.Pending(); n != 1 {
		t.Errorf("live timers after finalize = %d, want only the resolved hold", n)
	}
	if r := q.Results()[0]; r != (QuizResult{Correct: true, Points: 75}) {
		t.Errorf("result = %+v", r)
	}

	sched.fire(3 * time.Second)
	sched.drain()
	if closed != 1 || q.Stage() != StageClosed {
		t.Errorf("closed %d times, stage %v", closed, q.Stage())
	}
}

func TestStageText(t *testing.T) {
	if got := StageIdle.String(); got != "idle" {
		t.Errorf("StageIdle.String() = %q", got)
	}
	if b, err := StageIdle.MarshalText(); err != nil || string(b) != "idle" {
		t.Errorf("StageIdle.MarshalText() = %s, %v", b, err)
	}
	if _, err := Stage(9).MarshalText(); err == nil {
		t.Error("Stage(9).MarshalText() should fail")
	}
	if got := Stage(9).String(); got != "Stage(9)" {
		t.Errorf("Stage(9).String() = %q", got)
	}
}
