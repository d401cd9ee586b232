/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"fmt"
	"math/rand/v2"
	"strconv"
)

// Kind tells the two halves of a pair apart.
type Kind int

const (
	KindQuestion Kind = iota + 1
	KindAnswer
)

var kindNames = [...]string{KindQuestion: "question", KindAnswer: "answer"}

func (k Kind) String() string {
	if k == KindQuestion || k == KindAnswer {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != KindQuestion && k != KindAnswer {
		return nil, fmt.Errorf("memory: invalid kind: %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "question":
		*k = KindQuestion
	case "answer":
		*k = KindAnswer
	default:
		return fmt.Errorf("memory: invalid kind: %q", text)
	}
	return nil
}

// Pair is one question and its answer, as returned by a content source.
type Pair struct {
	Question string    `json:"question" validate:"required"`
	Answer   string    `json:"answer" validate:"required"`
	Image    string    `json:"image,omitempty"`
	Quiz     *QuizForm `json:"quiz,omitempty" validate:"omitempty"`
}

// QuizAnswer is one candidate answer of a quiz form.
type QuizAnswer struct {
	Content string `json:"content" validate:"required"`
	Correct bool   `json:"correct"`
}

// QuizForm is the multiple choice question attached to a showcased card.
type QuizForm struct {
	Prompt      string       `json:"prompt" validate:"required"`
	Answers     []QuizAnswer `json:"answers" validate:"min=2,dive"`
	Explanation string       `json:"explanation,omitempty"`
}

// Validate reports ErrInvalidQuiz unless at least one answer is correct.
func (f *QuizForm) Validate() error {
	if f == nil || len(f.Answers) == 0 {
		return fmt.Errorf("%w: no answers", ErrInvalidQuiz)
	}
	for _, a := range f.Answers {
		if a.Correct {
			return nil
		}
	}
	return fmt.Errorf("%w: no correct answer", ErrInvalidQuiz)
}

func (f *QuizForm) answer(content string) (QuizAnswer, bool) {
	for _, a := range f.Answers {
		if a.Content == content {
			return a, true
		}
	}
	return QuizAnswer{}, false
}

// QuizResult is one player's outcome for one quiz.
type QuizResult struct {
	Correct bool `json:"correct"`
	Points  int  `json:"points"`
}

// Card is a single tile on the board.
type Card struct {
	ID      string    `json:"id"`
	PairID  int       `json:"pairId"`
	Kind    Kind      `json:"kind"`
	Content string    `json:"content"`
	Image   string    `json:"image,omitempty"`
	Quiz    *QuizForm `json:"-"`
	Flipped bool      `json:"isFlipped"`
	Matched bool      `json:"isMatched"`
}

// Player is a roster entry. Score never decreases during a game.
type Player struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// BuildBoard lays out a question card and an answer card for every pair,
// tagged with the pair's index, and shuffles them into display order.
func BuildBoard(pairs []Pair, r *rand.Rand) ([]Card, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no question/answer pairs", ErrInsufficientInput)
	}

	cards := make([]Card, 0, len(pairs)*2)
	for i, p := range pairs {
		idx := strconv.Itoa(i)
		cards = append(cards,
			Card{
				ID:      "q-" + idx,
				PairID:  i,
				Kind:    KindQuestion,
				Content: p.Question,
				Image:   p.Image,
				Quiz:    p.Quiz,
			},
			Card{
				ID:      "a-" + idx,
				PairID:  i,
				Kind:    KindAnswer,
				Content: p.Answer,
				Image:   p.Image,
			},
		)
	}

	return Shuffle(cards, r), nil
}
