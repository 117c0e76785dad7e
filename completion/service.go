// Package completion turns one prompt plus sampling parameters into a
// continuation with word-count statistics. Success and failure are kept in
// separate channels of the return value; an error is never smuggled back as
// generated text.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Generator produces the full text (prompt included) for a prompt. Satisfied
// by *model.Generator.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxLength int, temperature float64) (string, error)
}

// Stats holds the word counts shown next to a completion
type Stats struct {
	InputWords     int
	GeneratedWords int
	TotalWords     int
}

// Result is a successful completion
type Result struct {
	// Completion is the continuation only, prompt stripped and trimmed.
	Completion string
	// FullText is the prompt and continuation joined with a single space,
	// or the prompt verbatim when the continuation is empty.
	FullText string
	Stats    Stats
}

// Service runs completion requests against a generator handle. The service
// borrows the handle per call and never mutates it.
type Service struct {
	gen Generator
}

// NewService creates a completion service over a generator handle
func NewService(gen Generator) *Service {
	return &Service{gen: gen}
}

// Complete generates a continuation for prompt. maxLength bounds the total
// token count; a prompt at or over the bound yields an empty continuation,
// which is a valid result rather than an error.
func (s *Service) Complete(ctx context.Context, prompt string, maxLength int, temperature float64) (Result, error) {
	if s.gen == nil {
		return Result{}, fmt.Errorf("no generator handle available")
	}
	if strings.TrimSpace(prompt) == "" {
		return Result{}, fmt.Errorf("prompt must not be empty")
	}

	slog.Info("completion requested",
		"prompt_prefix", prefixForLog(prompt),
		"max_length", maxLength,
		"temperature", temperature,
	)

	full, err := s.gen.Generate(ctx, prompt, maxLength, temperature)
	if err != nil {
		slog.Error("generation failed", "error", err)
		return Result{}, fmt.Errorf("error generating completion: %w", err)
	}

	// The generator echoes the prompt as a prefix; strip exactly that many
	// characters to leave the continuation.
	var completion string
	if len(full) >= len(prompt) {
		completion = strings.TrimSpace(full[len(prompt):])
	}

	fullText := prompt
	if completion != "" {
		fullText = prompt + " " + completion
	}

	result := Result{
		Completion: completion,
		FullText:   fullText,
		Stats: Stats{
			InputWords:     WordCount(prompt),
			GeneratedWords: WordCount(completion),
			TotalWords:     WordCount(fullText),
		},
	}

	slog.Info("completion generated", "chars", len(completion), "words", result.Stats.GeneratedWords)
	return result, nil
}

// WordCount returns the number of whitespace-separated words in s. The empty
// string counts zero.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

func prefixForLog(prompt string) string {
	const n = 50
	if len(prompt) <= n {
		return prompt
	}
	return prompt[:n] + "..."
}
