package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

// Question is one quiz item. Answer always matches one of the four
// options; question text is the unique key within a bank.
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// QuestionSource supplies the ordered question set for a round. The fetch
// may block; callers decide how long to wait via ctx.
type QuestionSource interface {
	Questions(ctx context.Context) ([]Question, error)
}

//go:embed questions/bank.json
var embeddedBank []byte

func validateBank(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("question bank is empty")
	}

	for _, q := range questions {
		if len(q.Options) != 4 {
			return fmt.Errorf("question %q: expected 4 options, got %d", q.Question, len(q.Options))
		}

		found := false
		for _, option := range q.Options {
			if option == q.Answer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("question %q: answer %q is not one of its options", q.Question, q.Answer)
		}
	}

	return nil
}

func parseBank(data []byte) ([]Question, error) {
	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parsing question bank: %w", err)
	}
	if err := validateBank(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// staticSource serves a bank parsed once at startup.
type staticSource struct {
	questions []Question
}

func (s *staticSource) Questions(_ context.Context) ([]Question, error) {
	out := make([]Question, len(s.questions))
	copy(out, s.questions)

	return out, nil
}

// fileSource re-reads its bank on every fetch, so the file can be
// swapped without restarting the server.
type fileSource struct {
	path string
}

func (f *fileSource) Questions(_ context.Context) ([]Question, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading question bank: %w", err)
	}

	return parseBank(data)
}

func newQuestionSource(cfg *Config) (QuestionSource, error) {
	if cfg.questionBank == "" {
		questions, err := parseBank(embeddedBank)
		if err != nil {
			return nil, err
		}
		return &staticSource{questions: questions}, nil
	}

	// Fail fast on an unusable bank, even though reads happen per fetch.
	source := &fileSource{path: cfg.questionBank}
	if _, err := source.Questions(context.Background()); err != nil {
		return nil, err
	}

	return source, nil
}
