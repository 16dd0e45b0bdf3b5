// Package runtime defines the boundary to the native tensor runtime that
// evaluates the model. The core only needs a handful of operations: load
// weights, create a context with a KV cache, tokenize, decode a batch, sample,
// and turn tokens back into bytes. Everything else about the runtime is
// opaque, and none of its handles may cross goroutines; the inference worker
// is their sole owner.
package runtime

// Token is a model vocabulary id.
type Token int32

// ModelInfo describes loaded weights. Read-only after load.
type ModelInfo struct {
	Path               string
	VocabSize          int
	EmbeddingDim       int
	TrainContextLength int
	ParamCount         uint64
	SizeBytes          int64
}

// ChatMessage is the runtime-facing view of a conversation entry, rendered
// through the model's chat template by FormatChat.
type ChatMessage struct {
	Role    string
	Content string
}

// ContextParams sizes a new context and its KV cache.
type ContextParams struct {
	NCtx     int
	NBatch   int
	NThreads int
}

// SamplerParams configures the sampling pipeline. Greedy selects argmax and
// ignores the remaining fields. A zero Seed means the runtime draws one from
// system entropy.
type SamplerParams struct {
	Greedy        bool
	Temperature   float32
	TopK          int
	TopP          float32
	RepeatPenalty float32
	Seed          uint32
}

// Backend is the process-wide runtime handle. Created once, closed last.
type Backend interface {
	// LoadModel maps the weights at path, offloading gpuLayers layers.
	LoadModel(path string, gpuLayers int) (Model, error)
	Close()
}

// Model owns loaded weights. Contexts borrow into the model's tensors, so
// every Context must be closed before the Model is.
type Model interface {
	Info() ModelInfo
	Tokenize(text string, addBOS bool) ([]Token, error)
	// TokenBytes returns the raw bytes of a token. The bytes are not
	// guaranteed to align to UTF-8 boundaries.
	TokenBytes(t Token) []byte
	// FormatChat renders messages through the model's chat template,
	// including the trailing assistant generation prompt.
	FormatChat(msgs []ChatMessage) (string, error)
	// IsEOG reports whether t is an end-of-generation marker.
	IsEOG(t Token) bool
	NewContext(p ContextParams) (Context, error)
	NewSampler(p SamplerParams) (Sampler, error)
	Close()
}

// Context holds the KV cache and decode scratch space.
type Context interface {
	NCtx() int
	NBatch() int
	// Decode feeds tokens at positions pos..pos+len(tokens)-1 through the
	// model. When wantLogits is set, logits for the final token are retained
	// for the next Sample call.
	Decode(tokens []Token, pos int, wantLogits bool) error
	// ClearKV resets the KV cache without freeing it.
	ClearKV()
	Close()
}

// Sampler picks the next token from a context's pending logits. Accepted
// tokens feed its internal state (repeat penalties, history).
type Sampler interface {
	Sample(c Context) (Token, error)
	Accept(t Token)
	Close()
}

// Runtime creates the backend singleton.
type Runtime interface {
	Init() (Backend, error)
}
