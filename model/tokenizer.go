package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/go-huggingface/tokenizers"
	"github.com/gomlx/go-huggingface/tokenizers/api"

	"text-completion-go/engine"
)

// newNativeTokenizer, when non-nil, constructs a tokenizer backed by the
// native HuggingFace tokenizers library. Set by the build-tagged CGo backend.
var newNativeTokenizer func(tokenizerFile string, eosID int) (engine.Tokenizer, error)

// newTokenizer builds the best available tokenizer for a downloaded model:
// the native CGo backend when compiled in, then the hub tokenizer, then a
// file-based fallback reading the snapshot directory.
func newTokenizer(repo *hub.Repo, snapshotDir string, mc *modelConfig) (engine.Tokenizer, error) {
	if newNativeTokenizer != nil {
		tk, err := newNativeTokenizer(filepath.Join(snapshotDir, "tokenizer.json"), mc.EOSTokenID)
		if err == nil {
			return tk, nil
		}
		slog.Warn("native tokenizer unavailable, falling back", "error", err)
	}

	if tok, err := tokenizers.New(repo); err == nil {
		eosID := mc.EOSTokenID
		if id, err := tok.SpecialTokenID(api.TokEndOfSentence); err == nil {
			eosID = id
		}
		return &hubTokenizer{tok: tok, eosID: eosID}, nil
	} else {
		slog.Warn("hub tokenizer unavailable, reading snapshot files", "error", err)
	}

	return newFileTokenizer(snapshotDir, mc)
}

// hubTokenizer adapts the go-huggingface tokenizer to the engine interface
type hubTokenizer struct {
	tok   api.Tokenizer
	eosID int
}

func (t *hubTokenizer) Encode(text string) ([]int, error) {
	return t.tok.Encode(text), nil
}

func (t *hubTokenizer) Decode(tokenIDs []int) (string, error) {
	return t.tok.Decode(tokenIDs), nil
}

func (t *hubTokenizer) EOSTokenID() int {
	return t.eosID
}

// fileTokenizer loads the vocabulary straight from a model snapshot directory
// (tokenizer.json or vocab.json). Encoding is greedy word-level with a
// character fallback; good enough to keep the demo alive when no real
// tokenizer backend is available.
type fileTokenizer struct {
	vocab    map[string]int
	invVocab map[int]string
	eosID    int
	padID    int
}

func newFileTokenizer(dir string, mc *modelConfig) (*fileTokenizer, error) {
	t := &fileTokenizer{
		vocab:    make(map[string]int),
		invVocab: make(map[int]string),
		eosID:    mc.EOSTokenID,
		padID:    mc.PadTokenID,
	}

	if err := t.loadTokenizerJSON(dir); err != nil {
		if err := t.loadVocabJSON(dir); err != nil {
			return nil, fmt.Errorf("failed to load tokenizer vocabulary: %w", err)
		}
	}

	t.loadSpecialTokens(dir)

	fmt.Printf("✓ Loaded tokenizer (vocab: %d, EOS: %d)\n", len(t.vocab), t.eosID)
	return t, nil
}

func (t *fileTokenizer) loadTokenizerJSON(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return err
	}

	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
		AddedTokens []struct {
			ID      int    `json:"id"`
			Content string `json:"content"`
		} `json:"added_tokens"`
	}

	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}

	for token, id := range parsed.Model.Vocab {
		t.vocab[token] = id
		t.invVocab[id] = token
	}
	for _, added := range parsed.AddedTokens {
		t.vocab[added.Content] = added.ID
		t.invVocab[added.ID] = added.Content
	}

	return nil
}

func (t *fileTokenizer) loadVocabJSON(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "vocab.json"))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &t.vocab); err != nil {
		return err
	}

	for token, id := range t.vocab {
		t.invVocab[id] = token
	}

	return nil
}

func (t *fileTokenizer) loadSpecialTokens(dir string) {
	data, err := os.ReadFile(filepath.Join(dir, "tokenizer_config.json"))
	if err != nil {
		return
	}

	var config struct {
		EOSToken any `json:"eos_token"`
		PadToken any `json:"pad_token"`
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return
	}

	if id, ok := t.vocab[tokenContent(config.EOSToken)]; ok {
		t.eosID = id
	}
	if id, ok := t.vocab[tokenContent(config.PadToken)]; ok {
		t.padID = id
	}
}

// tokenContent extracts the token string from a tokenizer_config value, which
// can be a bare string or an object with a "content" field.
func tokenContent(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case map[string]any:
		if content, ok := v["content"].(string); ok {
			return content
		}
	}
	return ""
}

func (t *fileTokenizer) Encode(text string) ([]int, error) {
	words := splitTokens(text)
	tokens := make([]int, 0, len(words))

	for _, word := range words {
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, id)
			continue
		}
		if id, ok := t.vocab[strings.ToLower(word)]; ok {
			tokens = append(tokens, id)
			continue
		}
		for _, ch := range word {
			if id, ok := t.vocab[string(ch)]; ok {
				tokens = append(tokens, id)
			} else {
				tokens = append(tokens, 0)
			}
		}
	}

	return tokens, nil
}

// splitTokens splits text into words, whitespace, and punctuation pieces
func splitTokens(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, ch := range text {
		switch {
		case ch == ' ' || ch == '\n' || ch == '\t':
			flush()
			tokens = append(tokens, string(ch))
		case strings.ContainsRune(".,!?:;-'\"", ch):
			flush()
			tokens = append(tokens, string(ch))
		default:
			current.WriteRune(ch)
		}
	}
	flush()

	return tokens
}

func (t *fileTokenizer) Decode(tokenIDs []int) (string, error) {
	var result strings.Builder

	for _, id := range tokenIDs {
		if id == t.eosID || id == t.padID {
			break
		}
		if token, ok := t.invVocab[id]; ok {
			result.WriteString(token)
		}
	}

	return result.String(), nil
}

func (t *fileTokenizer) EOSTokenID() int {
	return t.eosID
}
