package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// modelConfig carries the handful of fields we need from a HuggingFace
// config.json. Token IDs default to -1 when the file does not set them.
type modelConfig struct {
	VocabSize     int
	EOSTokenID    int
	BOSTokenID    int
	PadTokenID    int
	ContextWindow int
	ModelType     string
}

func readModelConfig(path string) (*modelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}

	var raw struct {
		VocabSize             int    `json:"vocab_size"`
		EOSTokenID            *int   `json:"eos_token_id"`
		BOSTokenID            *int   `json:"bos_token_id"`
		PadTokenID            *int   `json:"pad_token_id"`
		MaxPositionEmbeddings int    `json:"max_position_embeddings"`
		ModelType             string `json:"model_type"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}

	mc := &modelConfig{
		VocabSize:     raw.VocabSize,
		EOSTokenID:    -1,
		BOSTokenID:    -1,
		PadTokenID:    -1,
		ContextWindow: raw.MaxPositionEmbeddings,
		ModelType:     raw.ModelType,
	}

	if raw.EOSTokenID != nil {
		mc.EOSTokenID = *raw.EOSTokenID
	}
	if raw.BOSTokenID != nil {
		mc.BOSTokenID = *raw.BOSTokenID
	}
	if raw.PadTokenID != nil {
		mc.PadTokenID = *raw.PadTokenID
	}

	return mc, nil
}
