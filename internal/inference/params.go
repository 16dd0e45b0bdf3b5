package inference

// ContextSizes is the closed set of valid context sizes, in tokens. Requested
// sizes snap to this set so that a later prompt is more likely to fit an
// already-built context.
var ContextSizes = []int{2048, 4096, 8192, 16384, 32768, 65536, 131072}

// GenerationParams controls sampling and sizing for one generation.
type GenerationParams struct {
	// MaxTokens is the output budget, in tokens.
	MaxTokens int `json:"max_tokens"`
	// Temperature below 0.01 selects greedy decoding.
	Temperature float32 `json:"temperature"`
	TopK        int     `json:"top_k"`
	TopP        float32 `json:"top_p"`
	// RepeatPenalty >= 1; 1.0 disables it.
	RepeatPenalty float32 `json:"repeat_penalty"`
	// Seed 0 draws a fresh seed per call.
	Seed uint32 `json:"seed"`
	// MaxContextSize caps the context, further limited by the model's
	// train-time context length.
	MaxContextSize int `json:"max_context_size"`
}

// DefaultParams returns the balanced defaults used for chat turns.
func DefaultParams() GenerationParams {
	return GenerationParams{
		MaxTokens:      4096,
		Temperature:    0.7,
		TopK:           40,
		TopP:           0.95,
		RepeatPenalty:  1.1,
		Seed:           0,
		MaxContextSize: 16384,
	}
}

// FastParams favors latency: greedy decoding in a small context.
func FastParams() GenerationParams {
	return GenerationParams{
		MaxTokens:      2048,
		Temperature:    0.0,
		TopK:           1,
		TopP:           1.0,
		RepeatPenalty:  1.0,
		Seed:           0,
		MaxContextSize: 4096,
	}
}

// QualityParams favors long, varied output.
func QualityParams() GenerationParams {
	return GenerationParams{
		MaxTokens:      8192,
		Temperature:    0.8,
		TopK:           50,
		TopP:           0.95,
		RepeatPenalty:  1.1,
		Seed:           0,
		MaxContextSize: 16384,
	}
}

// Greedy reports whether the temperature selects argmax decoding.
func (p GenerationParams) Greedy() bool { return p.Temperature < 0.01 }

// Normalize clamps out-of-range fields to usable values.
func (p *GenerationParams) Normalize() {
	if p.MaxTokens < 1 {
		p.MaxTokens = 1
	}
	if p.Temperature < 0 {
		p.Temperature = 0
	}
	if p.TopK < 1 {
		p.TopK = 1
	}
	if p.TopP <= 0 || p.TopP > 1 {
		p.TopP = 1
	}
	if p.RepeatPenalty < 1 {
		p.RepeatPenalty = 1
	}
	if p.MaxContextSize <= 0 {
		p.MaxContextSize = ContextSizes[len(ContextSizes)-1]
	}
	p.MaxContextSize = SnapContextSize(p.MaxContextSize)
}

// SnapContextSize returns the closest member of ContextSizes.
func SnapContextSize(n int) int {
	best := ContextSizes[len(ContextSizes)-1]
	bestDiff := -1
	for _, s := range ContextSizes {
		diff := s - n
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}
	return best
}
