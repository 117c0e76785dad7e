package engine

import (
	"testing"
)

func TestSequenceCreation(t *testing.T) {
	params := NewSamplingParams(
		WithTemperature(0.8),
		WithMaxNewTokens(100),
	)

	tokenIDs := []int{1, 2, 3, 4, 5}
	seq := NewSequence(tokenIDs, params, 64)

	if seq.Len() != 5 {
		t.Errorf("Expected length 5, got %d", seq.Len())
	}

	if seq.NumPromptTokens != 5 {
		t.Errorf("Expected 5 prompt tokens, got %d", seq.NumPromptTokens)
	}

	if seq.NumCompletionTokens() != 0 {
		t.Errorf("Expected 0 completion tokens, got %d", seq.NumCompletionTokens())
	}

	if seq.Status != StatusWaiting {
		t.Errorf("Expected status WAITING, got %v", seq.Status)
	}

	if seq.Temperature != 0.8 {
		t.Errorf("Expected temperature 0.8, got %v", seq.Temperature)
	}
}

func TestSequenceAppendToken(t *testing.T) {
	params := NewSamplingParams()
	seq := NewSequence([]int{1, 2, 3}, params, 64)

	seq.AppendToken(4)

	if seq.Len() != 4 {
		t.Errorf("Expected length 4, got %d", seq.Len())
	}

	if seq.LastToken != 4 {
		t.Errorf("Expected last token 4, got %d", seq.LastToken)
	}

	if seq.NumCompletionTokens() != 1 {
		t.Errorf("Expected 1 completion token, got %d", seq.NumCompletionTokens())
	}
}

func TestSequencePromptCompletionSplit(t *testing.T) {
	params := NewSamplingParams()
	seq := NewSequence([]int{10, 11, 12}, params, 64)

	seq.AppendToken(20)
	seq.AppendToken(21)

	prompt := seq.PromptTokenIDs()
	if len(prompt) != 3 || prompt[0] != 10 || prompt[2] != 12 {
		t.Errorf("Unexpected prompt tokens: %v", prompt)
	}

	completion := seq.CompletionTokenIDs()
	if len(completion) != 2 || completion[0] != 20 || completion[1] != 21 {
		t.Errorf("Unexpected completion tokens: %v", completion)
	}
}

func TestSequenceBlocks(t *testing.T) {
	params := NewSamplingParams()
	tokenIDs := make([]int, 150) // More than 2 blocks at block size 64
	for i := range tokenIDs {
		tokenIDs[i] = i
	}
	seq := NewSequence(tokenIDs, params, 64)

	if seq.NumBlocks() != 3 {
		t.Errorf("Expected 3 blocks, got %d", seq.NumBlocks())
	}

	if seq.LastBlockNumTokens() != 150-2*64 {
		t.Errorf("Expected %d tokens in last block, got %d", 150-2*64, seq.LastBlockNumTokens())
	}

	block := seq.Block(0)
	if len(block) != 64 || block[0] != 0 || block[63] != 63 {
		t.Errorf("Unexpected first block contents")
	}

	if seq.Block(3) != nil {
		t.Errorf("Out-of-range block should be nil")
	}
}

func TestSequenceIDsUnique(t *testing.T) {
	params := NewSamplingParams()
	seq1 := NewSequence([]int{1}, params, 64)
	seq2 := NewSequence([]int{1}, params, 64)

	if seq1.SeqID == seq2.SeqID {
		t.Errorf("Sequence IDs should be unique, both got %d", seq1.SeqID)
	}
}
