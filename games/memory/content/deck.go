/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package content

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Seednode/quizmatch/games/memory"
	"github.com/gosimple/slug"
)

const (
	questionPrefix    = "Q:"
	answerPrefix      = "A:"
	explanationPrefix = "E:"
	promptPrefix      = "?"
	correctPrefix     = "+"
	wrongPrefix       = "-"
	separator         = "---"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingPrompt
	readingExplanation
)

func stripPrefix(line, prefix string) string {
	return strings.TrimPrefix(line[len(prefix):], " ")
}

// ParseDeck reads pairs in the deck format:
//
//	Q: question text
//	A: answer text
//	? quiz prompt
//	+ correct option
//	- wrong option
//	E: explanation
//	---
//
// Question, answer, prompt and explanation may continue on following
// lines. Option lines are only read between a prompt and the explanation;
// anywhere else a line starting with + or - continues the current text, so
// answers and explanations may contain bullet lists. Pairs without both a
// question and an answer are skipped.
func ParseDeck(r io.Reader) ([]memory.Pair, error) {
	scanner := bufio.NewScanner(r)

	var (
		pairs   []memory.Pair
		current memory.Pair
		quiz    memory.QuizForm
		block   []string
		options bool
	)
	currentState := seeking

	flush := func() {
		if len(block) == 0 {
			return
		}
		text := strings.Join(block, "\n")
		switch currentState {
		case readingQuestion:
			current.Question = text
		case readingAnswer:
			current.Answer = text
		case readingPrompt:
			quiz.Prompt = text
		case readingExplanation:
			quiz.Explanation = text
		}
		block = nil
	}

	finishPair := func() {
		flush()
		if quiz.Prompt != "" || len(quiz.Answers) > 0 {
			q := quiz
			current.Quiz = &q
		}
		if current.Question != "" || current.Answer != "" {
			pairs = append(pairs, current)
		}
		current = memory.Pair{}
		quiz = memory.QuizForm{}
		options = false
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.TrimSpace(line) == separator:
			finishPair()
		case strings.HasPrefix(line, questionPrefix):
			flush()
			if current.Question != "" || current.Answer != "" {
				finishPair()
			}
			currentState = readingQuestion
			options = false
			block = append(block, stripPrefix(line, questionPrefix))
		case strings.HasPrefix(line, answerPrefix):
			flush()
			currentState = readingAnswer
			options = false
			block = append(block, stripPrefix(line, answerPrefix))
		case strings.HasPrefix(line, explanationPrefix):
			flush()
			currentState = readingExplanation
			options = false
			block = append(block, stripPrefix(line, explanationPrefix))
		case strings.HasPrefix(line, promptPrefix):
			flush()
			currentState = readingPrompt
			options = true
			block = append(block, stripPrefix(line, promptPrefix))
		case options && (strings.HasPrefix(line, correctPrefix) || strings.HasPrefix(line, wrongPrefix)):
			flush()
			quiz.Answers = append(quiz.Answers, memory.QuizAnswer{
				Content: strings.TrimSpace(line[1:]),
				Correct: line[0] == correctPrefix[0],
			})
			currentState = seeking
		case currentState != seeking:
			block = append(block, line)
		}
	}

	finishPair()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cleanPairs(pairs), nil
}

// ParseDeckFile parses a single deck file.
func ParseDeckFile(path string) ([]memory.Pair, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseDeck(file)
}

// Deck serves pairs from local deck files. Each file is a topic named
// after its base name.
type Deck struct {
	mu     sync.Mutex
	topics map[string][]memory.Pair
	all    []memory.Pair
	rand   *rand.Rand
}

// NewDeck builds a deck from pairs grouped by topic.
func NewDeck(topics map[string][]memory.Pair, r *rand.Rand) *Deck {
	d := &Deck{topics: make(map[string][]memory.Pair, len(topics)), rand: r}
	for topic, pairs := range topics {
		key := slug.Make(topic)
		d.topics[key] = append(d.topics[key], pairs...)
		d.all = append(d.all, pairs...)
	}
	return d
}

// LoadDeck walks dir and parses every .md file in it.
func LoadDeck(dir string, logf Logf) (*Deck, error) {
	topics := make(map[string][]memory.Pair)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != dir:
			return filepath.SkipDir
		case d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md"):
			return nil
		}

		pairs, err := ParseDeckFile(path)
		if err != nil {
			logf.printf("failed to parse %s: %v", path, err)
			return nil
		}

		topic := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		topics[topic] = append(topics[topic], pairs...)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk deck directory %s: %w", dir, err)
	}

	deck := NewDeck(topics, nil)
	logf.printf("loaded %d pairs in %d topics from %s", deck.Len(), len(deck.topics), dir)

	return deck, nil
}

func (d *Deck) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.all)
}

// Generate returns up to count random pairs. Pairs filed under topic are
// preferred; an unknown topic draws from the whole deck.
func (d *Deck) Generate(ctx context.Context, topic string, count int) ([]memory.Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pool := d.topics[slug.Make(topic)]
	if len(pool) == 0 {
		pool = d.all
	}
	if len(pool) == 0 {
		return nil, memory.NewContentError("no questions found in the deck", nil)
	}

	picked := memory.Shuffle(pool, d.rand)
	if count > 0 && len(picked) > count {
		picked = picked[:count]
	}

	return picked, nil
}
