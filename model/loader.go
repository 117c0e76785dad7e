package model

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gomlx/go-huggingface/hub"

	"text-completion-go/engine"
)

// ModelID is the fixed model this demo serves: the ONNX export of
// meta-llama/Llama-3.2-1B. It is deliberately not configurable at runtime.
const ModelID = "onnx-community/Llama-3.2-1B"

const (
	modelFile     = "onnx/model.onnx"
	modelDataFile = "onnx/model.onnx_data"

	// CPU inference gets slow well before the model's real context limit,
	// so the engine window is capped.
	maxContextWindow = 4096
)

// StatusFunc receives human-readable progress messages during loading
type StatusFunc func(msg string)

// LoadOption is a functional option for Load
type LoadOption func(*loadOptions)

type loadOptions struct {
	cacheDir string
	status   StatusFunc
}

// WithCacheDir sets the local directory for downloaded hub files
func WithCacheDir(dir string) LoadOption {
	return func(o *loadOptions) {
		o.cacheDir = dir
	}
}

// WithStatus sets a callback for load progress messages
func WithStatus(fn StatusFunc) LoadOption {
	return func(o *loadOptions) {
		o.status = fn
	}
}

// loader memoizes one model load per process
type loader struct {
	once sync.Once
	gen  *Generator
	err  error
}

func (l *loader) load(build func() (*Generator, error)) (*Generator, error) {
	l.once.Do(func() {
		l.gen, l.err = build()
	})
	return l.gen, l.err
}

var defaultLoader loader

// Load downloads and assembles the generator for ModelID. It runs at most
// once per process: every later call returns the same handle (or the same
// error) without touching the network again. Failure is an explicit error,
// never a nil handle with no signal.
func Load(opts ...LoadOption) (*Generator, error) {
	return defaultLoader.load(func() (*Generator, error) {
		return buildGenerator(opts...)
	})
}

func buildGenerator(opts ...LoadOption) (*Generator, error) {
	o := &loadOptions{status: func(string) {}}
	for _, opt := range opts {
		opt(o)
	}

	o.status(fmt.Sprintf("Resolving %s on the Hugging Face hub...", ModelID))
	slog.Info("loading model", "model", ModelID)

	repo := hub.New(ModelID).WithProgressBar(true)
	if o.cacheDir != "" {
		repo = repo.WithCacheDir(o.cacheDir)
	}
	if err := repo.DownloadInfo(false); err != nil {
		return nil, fmt.Errorf("failed to query model repo %s: %w", ModelID, err)
	}

	o.status("Downloading tokenizer...")
	configPath, err := repo.DownloadFile("config.json")
	if err != nil {
		return nil, fmt.Errorf("failed to download config.json: %w", err)
	}
	if _, err := repo.DownloadFile("tokenizer.json"); err != nil {
		return nil, fmt.Errorf("failed to download tokenizer.json: %w", err)
	}
	if _, err := repo.DownloadFile("tokenizer_config.json"); err != nil {
		slog.Warn("no tokenizer_config.json in repo", "error", err)
	}
	snapshotDir := filepath.Dir(configPath)

	mc, err := readModelConfig(configPath)
	if err != nil {
		return nil, err
	}

	tok, err := newTokenizer(repo, snapshotDir, mc)
	if err != nil {
		return nil, err
	}
	o.status("Tokenizer loaded.")
	slog.Info("tokenizer loaded", "vocab_size", mc.VocabSize)

	eosID := tok.EOSTokenID()
	if eosID < 0 {
		eosID = mc.EOSTokenID
	}
	if eosID < 0 {
		return nil, fmt.Errorf("model %s defines no end-of-sequence token", ModelID)
	}

	// Causal LM tokenizers often ship without a pad token; padded
	// generation needs one, so alias it to EOS.
	if mc.PadTokenID < 0 {
		mc.PadTokenID = eosID
		o.status("Configured pad token (aliased to EOS).")
		slog.Info("pad token aliased to EOS", "token_id", eosID)
	}

	o.status("Downloading model weights (this may take several minutes)...")
	onnxPath, err := repo.DownloadFile(modelFile)
	if err != nil {
		return nil, fmt.Errorf("failed to download model weights: %w", err)
	}
	if _, err := repo.DownloadFile(modelDataFile); err != nil {
		// Smaller exports keep the weights inline in the graph file.
		slog.Debug("no external weight file", "error", err)
	}
	o.status("Model weights downloaded.")

	o.status("Initializing inference runtime...")
	runner, err := newONNXRunner(onnxPath, mc.VocabSize)
	if err != nil {
		return nil, err
	}

	window := mc.ContextWindow
	if window <= 0 || window > maxContextWindow {
		window = maxContextWindow
	}

	cfg := engine.NewConfig(snapshotDir,
		engine.WithContextWindow(window),
		engine.WithEOS(eosID),
		engine.WithMaxBatchedTokens(window),
	)
	eng := engine.New(cfg, runner, tok)

	o.status("Model ready for text generation.")
	slog.Info("model ready", "model", ModelID, "context_window", window, "eos", eosID)

	return newGenerator(eng, ModelID), nil
}
