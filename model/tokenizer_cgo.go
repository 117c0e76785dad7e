//go:build hftokenizers

package model

import (
	"fmt"

	"github.com/daulet/tokenizers"

	"text-completion-go/engine"
)

func init() {
	newNativeTokenizer = func(tokenizerFile string, eosID int) (engine.Tokenizer, error) {
		tk, err := tokenizers.FromFile(tokenizerFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer.json: %w", err)
		}
		return &nativeTokenizer{tk: tk, eosID: eosID}, nil
	}
}

// nativeTokenizer wraps the CGo bindings to the HuggingFace tokenizers
// library. Built only with the hftokenizers tag since it needs the static
// tokenizers library at link time.
type nativeTokenizer struct {
	tk    *tokenizers.Tokenizer
	eosID int
}

func (t *nativeTokenizer) Encode(text string) ([]int, error) {
	ids, _ := t.tk.Encode(text, false)
	tokens := make([]int, len(ids))
	for i, id := range ids {
		tokens[i] = int(id)
	}
	return tokens, nil
}

func (t *nativeTokenizer) Decode(tokenIDs []int) (string, error) {
	ids := make([]uint32, len(tokenIDs))
	for i, id := range tokenIDs {
		ids[i] = uint32(id)
	}
	return t.tk.Decode(ids, true), nil
}

func (t *nativeTokenizer) EOSTokenID() int {
	return t.eosID
}
