package engine

// ModelRunner runs one step of model inference over a batch of sequences.
// Implementations can sit on top of ONNX Runtime, a remote inference server,
// or anything else that can produce a next token per sequence.
type ModelRunner interface {
	// Run executes model inference on the given sequences and returns the
	// next token ID for each of them.
	Run(seqs []*Sequence, isPrefill bool) ([]int, error)

	// Close cleans up resources
	Close() error
}

// Tokenizer converts between text and the model's token IDs
type Tokenizer interface {
	// Encode converts text to token IDs
	Encode(text string) ([]int, error)

	// Decode converts token IDs to text
	Decode(tokenIDs []int) (string, error)

	// EOSTokenID returns the end-of-sequence token ID
	EOSTokenID() int
}

// StubRunner is a deterministic in-memory runner used in tests. It emits
// tokens from a fixed script and falls back to the EOS token when the script
// runs out.
type StubRunner struct {
	Script []int
	EOS    int
	pos    map[int64]int
	Calls  int
}

// NewStubRunner creates a stub runner that replays the given token script
func NewStubRunner(eos int, script ...int) *StubRunner {
	return &StubRunner{
		Script: script,
		EOS:    eos,
		pos:    make(map[int64]int),
	}
}

// Run returns the next scripted token for each sequence
func (r *StubRunner) Run(seqs []*Sequence, isPrefill bool) ([]int, error) {
	r.Calls++
	tokenIDs := make([]int, len(seqs))
	for i, seq := range seqs {
		p := r.pos[seq.SeqID]
		if p < len(r.Script) {
			tokenIDs[i] = r.Script[p]
		} else {
			tokenIDs[i] = r.EOS
		}
		r.pos[seq.SeqID] = p + 1
	}
	return tokenIDs, nil
}

// Close cleans up resources
func (r *StubRunner) Close() error {
	return nil
}

// StubTokenizer is a byte-level tokenizer used in tests: every byte of the
// input becomes one token, so token counts equal byte counts.
type StubTokenizer struct {
	EOS int
}

// Encode converts each byte of text into one token ID
func (t *StubTokenizer) Encode(text string) ([]int, error) {
	tokens := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = int(text[i])
	}
	return tokens, nil
}

// Decode converts token IDs back into bytes, stopping at EOS
func (t *StubTokenizer) Decode(tokenIDs []int) (string, error) {
	out := make([]byte, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if id == t.EOS {
			break
		}
		out = append(out, byte(id))
	}
	return string(out), nil
}

// EOSTokenID returns the end-of-sequence token ID
func (t *StubTokenizer) EOSTokenID() int {
	return t.EOS
}
