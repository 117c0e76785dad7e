package engine

import "fmt"

// Config holds the configuration for the generation engine
type Config struct {
	ModelDir         string
	ContextWindow    int
	EOS              int
	KVCacheBlockSize int
	NumKVCacheBlocks int
	MaxSeqs          int
	MaxBatchedTokens int
}

// ConfigOption is a functional option for Config
type ConfigOption func(*Config)

// NewConfig creates a new Config with default values
func NewConfig(modelDir string, opts ...ConfigOption) *Config {
	c := &Config{
		ModelDir:         modelDir,
		ContextWindow:    4096,
		EOS:              -1,
		KVCacheBlockSize: 64,
		NumKVCacheBlocks: 1024,
		MaxSeqs:          8,
		MaxBatchedTokens: 8192,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		panic(err)
	}

	return c
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.ContextWindow <= 0 {
		return fmt.Errorf("context window must be positive")
	}

	if c.KVCacheBlockSize < 16 || c.KVCacheBlockSize%16 != 0 {
		return fmt.Errorf("kv cache block size must be a positive multiple of 16")
	}

	if c.NumKVCacheBlocks < 1 {
		return fmt.Errorf("at least one kv cache block is required")
	}

	if c.MaxBatchedTokens < c.ContextWindow {
		return fmt.Errorf("max batched tokens must be >= context window")
	}

	return nil
}

// WithContextWindow sets the maximum model length in tokens
func WithContextWindow(n int) ConfigOption {
	return func(c *Config) {
		c.ContextWindow = n
	}
}

// WithEOS sets the EOS token ID
func WithEOS(id int) ConfigOption {
	return func(c *Config) {
		c.EOS = id
	}
}

// WithKVCacheBlockSize sets the KV cache block size
func WithKVCacheBlockSize(n int) ConfigOption {
	return func(c *Config) {
		c.KVCacheBlockSize = n
	}
}

// WithNumKVCacheBlocks sets the number of KV cache blocks
func WithNumKVCacheBlocks(n int) ConfigOption {
	return func(c *Config) {
		c.NumKVCacheBlocks = n
	}
}

// WithMaxSeqs sets the maximum number of concurrently scheduled sequences
func WithMaxSeqs(n int) ConfigOption {
	return func(c *Config) {
		c.MaxSeqs = n
	}
}

// WithMaxBatchedTokens sets the maximum number of batched tokens
func WithMaxBatchedTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxBatchedTokens = n
	}
}
