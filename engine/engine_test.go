package engine

import (
	"context"
	"strings"
	"testing"
)

const testEOS = 0

func testConfig(opts ...ConfigOption) *Config {
	base := []ConfigOption{
		WithEOS(testEOS),
		WithContextWindow(128),
		WithMaxBatchedTokens(512),
		WithNumKVCacheBlocks(32),
	}
	return NewConfig(".", append(base, opts...)...)
}

func TestEngineGenerate(t *testing.T) {
	tok := &StubTokenizer{EOS: testEOS}
	runner := NewStubRunner(testEOS, 'h', 'e', 'l', 'l', 'o')
	eng := New(testConfig(), runner, tok)

	params := NewSamplingParams(WithMaxNewTokens(32))
	out, err := eng.Generate(context.Background(), "prompt text", params, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if out.Text != "hello" {
		t.Errorf("Expected completion %q, got %q", "hello", out.Text)
	}

	if out.PromptTokens != len("prompt text") {
		t.Errorf("Expected %d prompt tokens, got %d", len("prompt text"), out.PromptTokens)
	}

	// Completion must not contain the prompt.
	if strings.Contains(out.Text, "prompt text") {
		t.Errorf("Completion should not echo the prompt")
	}
}

func TestEngineGenerateStopsAtMaxNewTokens(t *testing.T) {
	tok := &StubTokenizer{EOS: testEOS}
	// Script never reaches EOS within the budget.
	runner := NewStubRunner(testEOS, 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h')
	eng := New(testConfig(), runner, tok)

	params := NewSamplingParams(WithMaxNewTokens(3))
	out, err := eng.Generate(context.Background(), "xy", params, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(out.TokenIDs) != 3 {
		t.Errorf("Expected 3 generated tokens, got %d", len(out.TokenIDs))
	}

	if out.Text != "abc" {
		t.Errorf("Expected %q, got %q", "abc", out.Text)
	}
}

func TestEngineGenerateZeroBudget(t *testing.T) {
	tok := &StubTokenizer{EOS: testEOS}
	runner := NewStubRunner(testEOS, 'a')
	eng := New(testConfig(), runner, tok)

	params := NewSamplingParams(WithMaxNewTokens(0))
	out, err := eng.Generate(context.Background(), "some prompt", params, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if out.Text != "" {
		t.Errorf("Expected empty completion, got %q", out.Text)
	}

	if runner.Calls != 0 {
		t.Errorf("Runner should not be called with a zero token budget, got %d calls", runner.Calls)
	}
}

func TestEngineGenerateTruncatesToContextWindow(t *testing.T) {
	tok := &StubTokenizer{EOS: testEOS}
	runner := NewStubRunner(testEOS, 'z')
	eng := New(testConfig(WithContextWindow(16), WithMaxBatchedTokens(64)), runner, tok)

	long := strings.Repeat("x", 100)
	params := NewSamplingParams(WithMaxNewTokens(1))
	out, err := eng.Generate(context.Background(), long, params, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if out.PromptTokens != 16 {
		t.Errorf("Expected prompt truncated to 16 tokens, got %d", out.PromptTokens)
	}
}

func TestEngineGenerateEmptyPrompt(t *testing.T) {
	tok := &StubTokenizer{EOS: testEOS}
	runner := NewStubRunner(testEOS, 'a')
	eng := New(testConfig(), runner, tok)

	params := NewSamplingParams(WithMaxNewTokens(4))
	if _, err := eng.Generate(context.Background(), "", params, false); err == nil {
		t.Errorf("Expected error for empty prompt")
	}
}

func TestEngineGenerateCancelled(t *testing.T) {
	tok := &StubTokenizer{EOS: testEOS}
	runner := NewStubRunner(testEOS, 'a', 'b', 'c')
	eng := New(testConfig(), runner, tok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	params := NewSamplingParams(WithMaxNewTokens(4))
	if _, err := eng.Generate(ctx, "prompt", params, false); err == nil {
		t.Errorf("Expected context error for cancelled generation")
	}

	// Engine must be reusable after a cancelled request.
	out, err := eng.Generate(context.Background(), "prompt", params, false)
	if err != nil {
		t.Fatalf("Generate after cancel failed: %v", err)
	}
	if out.Text == "" {
		t.Errorf("Expected non-empty completion after cancel")
	}
}

func TestSamplingParamsValidation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected panic for zero temperature")
		}
	}()
	NewSamplingParams(WithTemperature(0))
}

func TestConfigValidation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected panic for invalid block size")
		}
	}()
	NewConfig(".", WithKVCacheBlockSize(7))
}
