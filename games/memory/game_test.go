package memory

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"
)

func mustGame(t *testing.T, pairs int, names ...string) (*Game, *ManualScheduler, *[]Event) {
	t.Helper()
	sched := NewManualScheduler()
	events := &[]Event{}
	g, err := NewGame(testPairs(pairs), names, GameOptions{
		Scheduler: sched,
		Rand:      rand.New(rand.NewPCG(9, 9)),
		OnEvent:   func(e Event) { *events = append(*events, e) },
	})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return g, sched, events
}

func scores(g *Game) []int {
	var out []int
	for _, p := range g.Players() {
		out = append(out, p.Score)
	}
	return out
}

func countKind(events []Event, k EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func TestNewGameValidation(t *testing.T) {
	sched := NewManualScheduler()

	_, err := NewGame(testPairs(1), nil, GameOptions{Scheduler: sched})
	if !errors.Is(err, ErrInsufficientInput) {
		t.Errorf("no players: err = %v, want ErrInsufficientInput", err)
	}
	if err == nil || err.Error() != "at least one player required" {
		t.Errorf("no players: message = %v", err)
	}

	_, err = NewGame(nil, []string{"A"}, GameOptions{Scheduler: sched})
	if !errors.Is(err, ErrInsufficientInput) {
		t.Errorf("no pairs: err = %v, want ErrInsufficientInput", err)
	}

	_, err = NewGame(testPairs(1), []string{"A"}, GameOptions{})
	if !errors.Is(err, ErrPreconditionViolation) {
		t.Errorf("no scheduler: err = %v, want ErrPreconditionViolation", err)
	}
}

func TestSinglePairMatchFinishesGame(t *testing.T) {
	g, _, events := mustGame(t, 1, "A", "B")

	if !g.Select("q-0") {
		t.Fatal("Select(q-0) refused")
	}
	if !g.Select("a-0") {
		t.Fatal("Select(a-0) refused")
	}

	for _, c := range g.Cards() {
		if !c.Matched || !c.Flipped {
			t.Errorf("card %s: matched=%v flipped=%v, want both true", c.ID, c.Matched, c.Flipped)
		}
	}
	if got := scores(g); !slices.Equal(got, []int{1, 0}) {
		t.Errorf("scores = %v, want [1 0]", got)
	}
	if g.Turn() != 0 {
		t.Errorf("turn = %d, want 0", g.Turn())
	}
	if !g.Finished() {
		t.Error("game should be finished")
	}
	if g.Checking() {
		t.Error("checking should be cleared after a match")
	}
	if g.Moves() != 1 {
		t.Errorf("moves = %d, want 1", g.Moves())
	}

	st := g.Standings()
	if len(st.Winners) != 1 || st.Winners[0].Name != "A" || st.Draw {
		t.Errorf("standings = %+v, want A alone", st)
	}
	if countKind(*events, EventFinished) != 1 {
		t.Errorf("finished events = %d, want 1", countKind(*events, EventFinished))
	}
}

func TestMismatchFlipsBackAndAdvancesTurn(t *testing.T) {
	g, sched, _ := mustGame(t, 2, "A", "B")

	g.Select("q-0")
	g.Select("a-1")

	if !g.Checking() {
		t.Fatal("checking should be set while the mismatch is displayed")
	}
	if g.Moves() != 1 {
		t.Errorf("moves = %d, want 1", g.Moves())
	}
	if g.Select("q-1") {
		t.Error("Select during resolution should be ignored")
	}

	sched.Advance(DefaultMismatchDelay - time.Millisecond)
	if c, _ := g.Card("q-0"); !c.Flipped {
		t.Error("q-0 flipped back before the delay elapsed")
	}
	if g.Turn() != 0 {
		t.Errorf("turn advanced early to %d", g.Turn())
	}

	sched.Advance(time.Millisecond)
	for _, id := range []string{"q-0", "a-1"} {
		if c, _ := g.Card(id); c.Flipped || c.Matched {
			t.Errorf("%s: flipped=%v matched=%v after delay", id, c.Flipped, c.Matched)
		}
	}
	if g.Turn() != 1 {
		t.Errorf("turn = %d, want 1", g.Turn())
	}
	if g.Checking() {
		t.Error("checking should be cleared")
	}
	if len(g.Flipped()) != 0 {
		t.Errorf("flip buffer = %v, want empty", g.Flipped())
	}
	if got := scores(g); !slices.Equal(got, []int{0, 0}) {
		t.Errorf("scores = %v, want [0 0]", got)
	}
}

func TestTurnWrapsAround(t *testing.T) {
	g, sched, _ := mustGame(t, 3, "A", "B")

	for i, want := range []int{1, 0, 1} {
		g.Select("q-0")
		g.Select("a-1")
		sched.Advance(DefaultMismatchDelay)
		if g.Turn() != want {
			t.Fatalf("after mismatch %d turn = %d, want %d", i+1, g.Turn(), want)
		}
	}
	if g.Moves() != 3 {
		t.Errorf("moves = %d, want 3", g.Moves())
	}
}

func TestMatchKeepsTurn(t *testing.T) {
	g, sched, _ := mustGame(t, 2, "A", "B")

	g.Select("q-0")
	g.Select("a-1")
	sched.Advance(DefaultMismatchDelay)

	g.Select("q-1")
	g.Select("a-1")
	if g.Turn() != 1 {
		t.Errorf("turn = %d, want 1 after B matched", g.Turn())
	}
	if got := scores(g); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("scores = %v, want [0 1]", got)
	}
	if g.Finished() {
		t.Error("game finished with a pair left")
	}
}

func TestSelectIgnoredCases(t *testing.T) {
	g, _, _ := mustGame(t, 2, "A")

	if g.Select("nope") {
		t.Error("unknown card accepted")
	}

	g.Select("q-0")
	if g.Select("q-0") {
		t.Error("same card accepted twice")
	}
	if got := g.Flipped(); !slices.Equal(got, []string{"q-0"}) {
		t.Errorf("flip buffer = %v, want [q-0]", got)
	}

	g.Select("a-0")
	if g.Select("a-0") || g.Select("q-0") {
		t.Error("matched card accepted")
	}
}

func TestCompletionFiresOnce(t *testing.T) {
	g, _, events := mustGame(t, 2, "A")

	g.Select("q-0")
	g.Select("a-0")
	if g.Finished() || countKind(*events, EventFinished) != 0 {
		t.Fatal("finished before the last pair")
	}

	g.Select("a-1")
	g.Select("q-1")
	if !g.Finished() {
		t.Fatal("not finished after the last pair")
	}

	g.checkComplete()
	g.Select("q-0")
	if n := countKind(*events, EventFinished); n != 1 {
		t.Errorf("finished events = %d, want 1", n)
	}
}

func TestCloseCancelsFlipBack(t *testing.T) {
	g, sched, events := mustGame(t, 2, "A", "B")

	g.Select("q-0")
	g.Select("a-1")
	g.Close()

	if sched.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", sched.Pending())
	}
	sched.Advance(time.Minute)
	if countKind(*events, EventFlipBack) != 0 {
		t.Error("flip-back ran after Close")
	}
	if g.Turn() != 0 {
		t.Errorf("turn = %d, want 0", g.Turn())
	}
}

func TestCustomMismatchDelay(t *testing.T) {
	sched := NewManualScheduler()
	g, err := NewGame(testPairs(2), []string{"A", "B"}, GameOptions{
		Scheduler:     sched,
		MismatchDelay: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}

	g.Select("q-0")
	g.Select("a-1")
	sched.Advance(50 * time.Millisecond)
	if g.Turn() != 1 {
		t.Errorf("turn = %d, want 1 after custom delay", g.Turn())
	}
}

func TestAward(t *testing.T) {
	g, _, _ := mustGame(t, 1, "A", "B")

	if !g.Award(1, 75) {
		t.Error("Award(1, 75) refused")
	}
	if g.Award(1, 0) || g.Award(1, -5) || g.Award(7, 10) {
		t.Error("Award accepted invalid input")
	}
	if got := scores(g); !slices.Equal(got, []int{0, 75}) {
		t.Errorf("scores = %v, want [0 75]", got)
	}
}

func TestSnapshotHidesFaceDownCards(t *testing.T) {
	g, _, _ := mustGame(t, 2, "A")
	g.Select("q-0")

	v := g.Snapshot()
	if len(v.Cards) != 4 {
		t.Fatalf("snapshot has %d cards", len(v.Cards))
	}
	for _, c := range v.Cards {
		if c.ID == "q-0" {
			if c.Content == "" || c.PairID == nil {
				t.Errorf("face-up card hidden: %+v", c)
			}
			continue
		}
		if c.Content != "" || c.PairID != nil {
			t.Errorf("face-down card %s leaks content: %+v", c.ID, c)
		}
	}
	if v.Current.Name != "A" || !slices.Equal(v.Flipped, []string{"q-0"}) {
		t.Errorf("snapshot = %+v", v)
	}
}

func TestAdvanceTurnWithoutPlayersPanics(t *testing.T) {
	g := &Game{}
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrPreconditionViolation) {
			t.Errorf("recover() = %v, want ErrPreconditionViolation", r)
		}
	}()
	g.advanceTurn()
}
