/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package content

import (
	"strings"

	"github.com/Seednode/quizmatch/games/memory"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Logf receives diagnostic lines from the sources in this package.
type Logf func(format string, args ...any)

func (l Logf) printf(format string, args ...any) {
	if l != nil {
		l(format, args...)
	}
}

// cleanPairs trims every field and drops pairs that fail validation. A
// pair whose quiz is malformed keeps its question and answer and loses the
// quiz.
func cleanPairs(in []memory.Pair) []memory.Pair {
	out := make([]memory.Pair, 0, len(in))

	for _, p := range in {
		p.Question = strings.TrimSpace(p.Question)
		p.Answer = strings.TrimSpace(p.Answer)
		p.Image = strings.TrimSpace(p.Image)

		if p.Quiz != nil {
			q := *p.Quiz
			q.Prompt = strings.TrimSpace(q.Prompt)
			q.Explanation = strings.TrimSpace(q.Explanation)
			answers := make([]memory.QuizAnswer, len(q.Answers))
			for i, a := range q.Answers {
				answers[i] = memory.QuizAnswer{Content: strings.TrimSpace(a.Content), Correct: a.Correct}
			}
			q.Answers = answers

			if validate.Struct(q) != nil || q.Validate() != nil {
				p.Quiz = nil
			} else {
				p.Quiz = &q
			}
		}

		if validate.Struct(p) != nil {
			continue
		}

		out = append(out, p)
	}

	return out
}
