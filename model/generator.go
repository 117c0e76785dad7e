package model

import (
	"context"
	"fmt"
	"log/slog"

	"text-completion-go/engine"
)

// Generator is the process-wide handle for text generation. It is read-only
// after construction; callers borrow it per request without mutating it.
type Generator struct {
	eng     *engine.Engine
	modelID string
}

func newGenerator(eng *engine.Engine, modelID string) *Generator {
	return &Generator{eng: eng, modelID: modelID}
}

// ModelID returns the identifier of the loaded model
func (g *Generator) ModelID() string {
	return g.modelID
}

// ContextWindow returns the engine's maximum model length in tokens
func (g *Generator) ContextWindow() int {
	return g.eng.Config().ContextWindow
}

// Close releases the underlying inference resources
func (g *Generator) Close() error {
	return g.eng.Close()
}

// Generate extends prompt with sampled text and returns the FULL text,
// prompt included, matching causal continuation semantics. maxLength bounds
// the total token count (prompt plus continuation): when the prompt alone
// meets or exceeds it, the prompt is returned verbatim and the continuation
// is empty.
func (g *Generator) Generate(ctx context.Context, prompt string, maxLength int, temperature float64) (string, error) {
	if maxLength <= 0 {
		return "", fmt.Errorf("max length must be positive, got %d", maxLength)
	}
	if temperature <= 0 {
		return "", fmt.Errorf("temperature must be positive, got %v", temperature)
	}

	promptTokens, err := g.eng.Tokenizer().Encode(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt: %w", err)
	}

	budget := maxLength - len(promptTokens)
	if budget <= 0 {
		return prompt, nil
	}

	slog.Info("generating completion",
		"prompt_tokens", len(promptTokens),
		"max_new_tokens", budget,
		"temperature", temperature,
	)

	params := engine.NewSamplingParams(
		engine.WithTemperature(temperature),
		engine.WithMaxNewTokens(budget),
	)

	out, err := g.eng.Generate(ctx, prompt, params, false)
	if err != nil {
		return "", err
	}

	slog.Info("completion generated", "tokens", len(out.TokenIDs), "chars", len(out.Text))
	return prompt + out.Text, nil
}

// NewGeneratorWithComponents wires a generator over custom engine components.
// Used by tests and by alternative inference backends.
func NewGeneratorWithComponents(runner engine.ModelRunner, tok engine.Tokenizer, window int) *Generator {
	cfg := engine.NewConfig(".",
		engine.WithContextWindow(window),
		engine.WithEOS(tok.EOSTokenID()),
		engine.WithMaxBatchedTokens(window),
	)
	return newGenerator(engine.New(cfg, runner, tok), "custom")
}
