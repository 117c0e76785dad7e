package engine

import "fmt"

// SamplingParams holds the sampling parameters for a generation request
type SamplingParams struct {
	Temperature  float64
	MaxNewTokens int
	IgnoreEOS    bool
}

// SamplingOption is a functional option for SamplingParams
type SamplingOption func(*SamplingParams)

// NewSamplingParams creates a new SamplingParams with default values
func NewSamplingParams(opts ...SamplingOption) *SamplingParams {
	sp := &SamplingParams{
		Temperature:  0.7,
		MaxNewTokens: 128,
		IgnoreEOS:    false,
	}

	for _, opt := range opts {
		opt(sp)
	}

	if err := sp.validate(); err != nil {
		panic(err)
	}

	return sp
}

// validate checks if the sampling parameters are valid
func (sp *SamplingParams) validate() error {
	if sp.Temperature <= 1e-10 {
		return fmt.Errorf("greedy sampling is not permitted (temperature too low)")
	}
	if sp.MaxNewTokens < 0 {
		return fmt.Errorf("max new tokens must not be negative")
	}
	return nil
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) SamplingOption {
	return func(sp *SamplingParams) {
		sp.Temperature = t
	}
}

// WithMaxNewTokens sets the maximum number of tokens to generate
func WithMaxNewTokens(n int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.MaxNewTokens = n
	}
}

// WithIgnoreEOS sets whether to ignore the EOS token
func WithIgnoreEOS(b bool) SamplingOption {
	return func(sp *SamplingParams) {
		sp.IgnoreEOS = b
	}
}
