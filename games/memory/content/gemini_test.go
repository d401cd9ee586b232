package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Seednode/quizmatch/games/memory"
)

func TestParseResponse(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		wantPairs int
		wantQuiz  bool
		wantErr   bool
	}{
		{
			name:      "plain JSON",
			input:     `{"pairs":[{"question":"Capital of France?","answer":"Paris"},{"question":"2+2","answer":"4"}]}`,
			wantPairs: 2,
		},
		{
			name:      "fenced JSON",
			input:     "```json\n{\"pairs\":[{\"question\":\"Q\",\"answer\":\"A\"}]}\n```",
			wantPairs: 1,
		},
		{
			name:      "bare fence",
			input:     "  ```\n{\"pairs\":[{\"question\":\"Q\",\"answer\":\"A\"}]}\n```  ",
			wantPairs: 1,
		},
		{
			name: "with quiz",
			input: `{"pairs":[{"question":"Q","answer":"A","quiz":{"prompt":"P",
				"answers":[{"content":"x","correct":true},{"content":"y","correct":false}],"explanation":"E"}}]}`,
			wantPairs: 1,
			wantQuiz:  true,
		},
		{
			name: "quiz without a correct answer is dropped",
			input: `{"pairs":[{"question":"Q","answer":"A","quiz":{"prompt":"P",
				"answers":[{"content":"x"},{"content":"y"}]}}]}`,
			wantPairs: 1,
		},
		{
			name:      "blank pairs are dropped",
			input:     `{"pairs":[{"question":"  ","answer":"A"},{"question":"Q","answer":"A"}]}`,
			wantPairs: 1,
		},
		{name: "missing pairs", input: `{"items":[]}`, wantErr: true},
		{name: "only blank pairs", input: `{"pairs":[{"question":"","answer":""}]}`, wantErr: true},
		{name: "not JSON", input: "Sorry, I cannot help with that.", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pairs, err := ParseResponse(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseResponse() = %v, want error", pairs)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResponse(): %v", err)
			}
			if len(pairs) != tc.wantPairs {
				t.Fatalf("got %d pairs, want %d", len(pairs), tc.wantPairs)
			}
			if got := pairs[0].Quiz != nil; got != tc.wantQuiz {
				t.Errorf("quiz present = %v, want %v", got, tc.wantQuiz)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt("Roman history", 8, false)
	if !strings.Contains(p, `Generate 8 distinct question/answer pairs about the topic "Roman history".`) {
		t.Errorf("prompt = %q", p)
	}
	if strings.Contains(p, "quiz") {
		t.Error("quiz clause present without quizzes")
	}
	if !strings.Contains(buildPrompt("x", 1, true), "multiple choice quiz") {
		t.Error("quiz clause missing")
	}
}

func TestResponseSchema(t *testing.T) {
	s := responseSchema(true)
	items := s.Properties["pairs"].Items
	if items == nil || items.Properties["quiz"] == nil {
		t.Fatal("quiz property missing from schema")
	}
	if responseSchema(false).Properties["pairs"].Items.Properties["quiz"] != nil {
		t.Error("quiz property present without quizzes")
	}
}

func TestGeminiGenerate(t *testing.T) {
	reply := `{"pairs":[{"question":"a","answer":"1"},{"question":"b","answer":"2"},{"question":"c","answer":"3"}]}`

	var prompt string
	g := &Gemini{generate: func(_ context.Context, p string) (string, error) {
		prompt = p
		return reply, nil
	}}

	pairs, err := g.Generate(context.Background(), "letters", 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(pairs) != 2 {
		t.Errorf("got %d pairs, want 2", len(pairs))
	}
	if !strings.Contains(prompt, `"letters"`) {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestGeminiGenerateErrors(t *testing.T) {
	testCases := []struct {
		name    string
		reply   string
		err     error
		message string
	}{
		{"transport", "", errors.New("dial tcp: i/o timeout"), geminiFailure},
		{"bad reply", "not json", nil, "invalid data format from API"},
		{"no usable pairs", `{"pairs":[{"question":"","answer":""}]}`, nil, "invalid data format from API"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := &Gemini{generate: func(context.Context, string) (string, error) {
				return tc.reply, tc.err
			}}

			_, err := g.Generate(context.Background(), "x", 4)
			if !errors.Is(err, memory.ErrContentGeneration) {
				t.Fatalf("err = %v, want ErrContentGeneration", err)
			}
			if err.Error() != tc.message {
				t.Errorf("message = %q, want %q", err.Error(), tc.message)
			}
		})
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), GeminiOptions{}); err == nil {
		t.Error("NewGemini without a key should fail")
	}
}
