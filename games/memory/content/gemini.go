/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Seednode/quizmatch/games/memory"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultModel       = "gemini-2.5-flash"
	DefaultTemperature = 0.8

	geminiFailure = "could not generate content from Gemini; check the API key and network connection"
)

var errBadFormat = errors.New("invalid data format from API")

type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature float32
	// Quizzes asks the model for a multiple choice quiz on every pair.
	Quizzes bool
}

// Gemini generates pairs with the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	quizzes     bool

	generate func(ctx context.Context, prompt string) (string, error)
}

func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: API key required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	g := &Gemini{
		client:      client,
		model:       opts.Model,
		temperature: opts.Temperature,
		quizzes:     opts.Quizzes,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.temperature <= 0 {
		g.temperature = DefaultTemperature
	}
	g.generate = g.call

	return g, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) call(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = responseSchema(g.quizzes)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}

	return b.String(), nil
}

// Generate asks the model for count pairs about topic.
func (g *Gemini) Generate(ctx context.Context, topic string, count int) ([]memory.Pair, error) {
	text, err := g.generate(ctx, buildPrompt(topic, count, g.quizzes))
	if err != nil {
		return nil, memory.NewContentError(geminiFailure, err)
	}

	pairs, err := ParseResponse(text)
	if err != nil {
		return nil, memory.NewContentError(errBadFormat.Error(), err)
	}

	if len(pairs) > count {
		pairs = pairs[:count]
	}

	return pairs, nil
}

func buildPrompt(topic string, count int, quizzes bool) string {
	prompt := fmt.Sprintf("Generate %d distinct question/answer pairs about the topic %q. "+
		"The questions and answers should be concise enough to fit on a small card.", count, topic)

	if quizzes {
		prompt += " For every pair also write a multiple choice quiz about the same fact, " +
			"with a prompt, three or four candidate answers of which exactly one is correct, " +
			"and a one sentence explanation."
	}

	return prompt
}

func responseSchema(quizzes bool) *genai.Schema {
	pair := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"question": {Type: genai.TypeString, Description: "A concise question."},
			"answer":   {Type: genai.TypeString, Description: "A short, direct answer to the question."},
		},
		Required: []string{"question", "answer"},
	}

	if quizzes {
		pair.Properties["quiz"] = &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"prompt": {Type: genai.TypeString},
				"answers": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"content": {Type: genai.TypeString},
							"correct": {Type: genai.TypeBoolean},
						},
						Required: []string{"content", "correct"},
					},
				},
				"explanation": {Type: genai.TypeString},
			},
			Required: []string{"prompt", "answers"},
		}
		pair.Required = append(pair.Required, "quiz")
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"pairs": {
				Type:        genai.TypeArray,
				Description: "An array of question and answer pairs.",
				Items:       pair,
			},
		},
		Required: []string{"pairs"},
	}
}

type response struct {
	Pairs []memory.Pair `json:"pairs"`
}

// ParseResponse decodes a model reply. Markdown code fences around the
// JSON are tolerated.
func ParseResponse(text string) ([]memory.Pair, error) {
	text = trimFence(text)

	var r response
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadFormat, err)
	}
	if r.Pairs == nil {
		return nil, errBadFormat
	}

	pairs := cleanPairs(r.Pairs)
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no usable pairs", errBadFormat)
	}

	return pairs, nil
}

func trimFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	return strings.TrimSpace(text)
}
