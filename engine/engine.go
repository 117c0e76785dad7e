package engine

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
)

// Output is the result of one completion request
type Output struct {
	// Text is the decoded continuation, without the prompt.
	Text string
	// TokenIDs are the generated token IDs, without the prompt tokens.
	TokenIDs []int
	// PromptTokens is the number of tokens the prompt occupied after any
	// truncation to the context window.
	PromptTokens int
}

// Engine drives autoregressive generation over a ModelRunner and a Tokenizer
type Engine struct {
	config    *Config
	runner    ModelRunner
	tokenizer Tokenizer
	scheduler *Scheduler
}

// New creates a new generation engine
func New(config *Config, runner ModelRunner, tokenizer Tokenizer) *Engine {
	return &Engine{
		config:    config,
		runner:    runner,
		tokenizer: tokenizer,
		scheduler: NewScheduler(config),
	}
}

// Tokenizer returns the engine's tokenizer
func (e *Engine) Tokenizer() Tokenizer {
	return e.tokenizer
}

// Config returns the engine's configuration
func (e *Engine) Config() *Config {
	return e.config
}

// Close cleans up resources
func (e *Engine) Close() error {
	return e.runner.Close()
}

// Generate runs one prompt to completion. The prompt is truncated to the
// context window before scheduling. The call blocks until generation finishes;
// ctx is only checked between steps.
func (e *Engine) Generate(ctx context.Context, prompt string, params *SamplingParams, showProgress bool) (Output, error) {
	tokenIDs, err := e.tokenizer.Encode(prompt)
	if err != nil {
		return Output{}, fmt.Errorf("failed to encode prompt: %w", err)
	}
	if len(tokenIDs) == 0 {
		return Output{}, fmt.Errorf("prompt produced no tokens")
	}

	if len(tokenIDs) > e.config.ContextWindow {
		tokenIDs = tokenIDs[:e.config.ContextWindow]
	}

	if params.MaxNewTokens == 0 {
		return Output{Text: "", TokenIDs: nil, PromptTokens: len(tokenIDs)}, nil
	}

	seq := NewSequence(tokenIDs, params, e.config.KVCacheBlockSize)
	e.scheduler.Add(seq)

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(params.MaxNewTokens,
			progressbar.OptionSetDescription("Generating"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
		)
	}

	for !e.scheduler.IsFinished() {
		if err := ctx.Err(); err != nil {
			e.scheduler.Cancel(seq)
			return Output{}, err
		}

		seqs, isPrefill := e.scheduler.Schedule()

		stepTokens, err := e.runner.Run(seqs, isPrefill)
		if err != nil {
			return Output{}, fmt.Errorf("model inference failed: %w", err)
		}

		e.scheduler.Postprocess(seqs, stepTokens)

		if bar != nil && !isPrefill {
			bar.Add(len(seqs))
		}
	}

	if bar != nil {
		bar.Finish()
	}

	completion := seq.CompletionTokenIDs()
	if !seq.IgnoreEOS && len(completion) > 0 && completion[len(completion)-1] == e.config.EOS {
		completion = completion[:len(completion)-1]
	}

	text, err := e.tokenizer.Decode(completion)
	if err != nil {
		return Output{}, fmt.Errorf("failed to decode tokens: %w", err)
	}

	return Output{
		Text:         text,
		TokenIDs:     completion,
		PromptTokens: seq.NumPromptTokens,
	}, nil
}
