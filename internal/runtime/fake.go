package runtime

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Fake is a deterministic in-memory Runtime used by the test suite. Token ids
// are interned byte chunks; generation replays a scripted reply, chunked into
// token bytes whose boundaries depend on the sampler seed so that multi-byte
// runes can split across tokens.
type Fake struct {
	mu sync.Mutex

	// Script produces the assistant reply for a rendered prompt. When nil,
	// the fake replies "ok".
	Script func(prompt string) string

	// InitErr, when set, makes Init fail.
	InitErr error

	// LoadErr, when set, makes every LoadModel call fail.
	LoadErr error

	// TrainContextLength reported by loaded models. Defaults to 32768.
	TrainContextLength int

	// Counters observed by tests.
	BackendsInited  int
	ModelsLoaded    int
	ContextsCreated int
	ContextsClosed  int

	sampleCalls atomic.Int64

	// CloseOrderViolation is set if a model closes while a context built on
	// it is still open.
	CloseOrderViolation bool

	openContexts int
}

const (
	fakeBOS Token = 1
	fakeEOG Token = 2
)

// Init implements Runtime.
func (f *Fake) Init() (Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InitErr != nil {
		return nil, f.InitErr
	}
	f.BackendsInited++
	return &fakeBackend{rt: f}, nil
}

type fakeBackend struct {
	rt     *Fake
	closed bool
}

func (b *fakeBackend) LoadModel(path string, gpuLayers int) (Model, error) {
	b.rt.mu.Lock()
	defer b.rt.mu.Unlock()
	if b.rt.LoadErr != nil {
		return nil, b.rt.LoadErr
	}
	b.rt.ModelsLoaded++
	trainCtx := b.rt.TrainContextLength
	if trainCtx <= 0 {
		trainCtx = 32768
	}
	m := &fakeModel{
		rt: b.rt,
		info: ModelInfo{
			Path:               path,
			VocabSize:          32000,
			EmbeddingDim:       4096,
			TrainContextLength: trainCtx,
			ParamCount:         7_000_000_000,
			SizeBytes:          4 << 30,
		},
		vocab:   map[string]Token{},
		byToken: map[Token][]byte{fakeBOS: nil, fakeEOG: nil},
		next:    10,
	}
	return m, nil
}

func (b *fakeBackend) Close() { b.closed = true }

type fakeModel struct {
	rt      *Fake
	info    ModelInfo
	closed  bool
	mu      sync.Mutex
	vocab   map[string]Token
	byToken map[Token][]byte
	next    Token
}

func (m *fakeModel) Info() ModelInfo { return m.info }

func (m *fakeModel) intern(chunk string) Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.vocab[chunk]; ok {
		return t
	}
	t := m.next
	m.next++
	m.vocab[chunk] = t
	m.byToken[t] = []byte(chunk)
	return t
}

// chunkBytes splits text into byte chunks of 1..3 bytes, with boundaries
// derived from seed. Chunks deliberately ignore rune boundaries.
func chunkBytes(text string, seed uint32) []string {
	var chunks []string
	b := []byte(text)
	for i := 0; i < len(b); {
		n := 1 + int((seed+uint32(i))%3)
		if i+n > len(b) {
			n = len(b) - i
		}
		chunks = append(chunks, string(b[i:i+n]))
		i += n
	}
	return chunks
}

func (m *fakeModel) Tokenize(text string, addBOS bool) ([]Token, error) {
	var toks []Token
	if addBOS {
		toks = append(toks, fakeBOS)
	}
	// Fixed 4-byte chunking keeps prompt token counts stable.
	b := []byte(text)
	for i := 0; i < len(b); i += 4 {
		end := i + 4
		if end > len(b) {
			end = len(b)
		}
		toks = append(toks, m.intern(string(b[i:end])))
	}
	return toks, nil
}

func (m *fakeModel) TokenBytes(t Token) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byToken[t]
}

func (m *fakeModel) FormatChat(msgs []ChatMessage) (string, error) {
	var sb strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&sb, "<|%s|>\n%s\n", msg.Role, msg.Content)
	}
	sb.WriteString("<|assistant|>\n")
	return sb.String(), nil
}

func (m *fakeModel) IsEOG(t Token) bool { return t == fakeEOG }

func (m *fakeModel) NewContext(p ContextParams) (Context, error) {
	m.rt.mu.Lock()
	defer m.rt.mu.Unlock()
	m.rt.ContextsCreated++
	m.rt.openContexts++
	return &fakeContext{model: m, params: p}, nil
}

func (m *fakeModel) NewSampler(p SamplerParams) (Sampler, error) {
	return &fakeSampler{model: m, params: p}, nil
}

func (m *fakeModel) Close() {
	m.rt.mu.Lock()
	defer m.rt.mu.Unlock()
	if m.rt.openContexts > 0 {
		m.rt.CloseOrderViolation = true
	}
	m.closed = true
}

type fakeContext struct {
	model  *fakeModel
	params ContextParams
	fed    []byte
	pos    int
	closed bool
}

func (c *fakeContext) NCtx() int   { return c.params.NCtx }
func (c *fakeContext) NBatch() int { return c.params.NBatch }

func (c *fakeContext) Decode(tokens []Token, pos int, wantLogits bool) error {
	if c.closed {
		return fmt.Errorf("decode on closed context")
	}
	if len(tokens) > c.params.NBatch {
		return fmt.Errorf("batch of %d exceeds n_batch %d", len(tokens), c.params.NBatch)
	}
	if pos+len(tokens) > c.params.NCtx {
		return fmt.Errorf("decode past n_ctx: pos %d + %d > %d", pos, len(tokens), c.params.NCtx)
	}
	for _, t := range tokens {
		c.fed = append(c.fed, c.model.TokenBytes(t)...)
	}
	c.pos = pos + len(tokens)
	return nil
}

func (c *fakeContext) ClearKV() {
	c.fed = nil
	c.pos = 0
}

func (c *fakeContext) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.model.rt.mu.Lock()
	defer c.model.rt.mu.Unlock()
	c.model.rt.ContextsClosed++
	c.model.rt.openContexts--
}

type fakeSampler struct {
	model  *fakeModel
	params SamplerParams
	reply  []Token
	idx    int
}

// SampleCalls reports how many Sample invocations have happened across all
// samplers, for cancellation-latency assertions.
func (f *Fake) SampleCalls() int64 { return f.sampleCalls.Load() }

func (s *fakeSampler) Sample(c Context) (Token, error) {
	s.model.rt.sampleCalls.Add(1)
	fc, ok := c.(*fakeContext)
	if !ok {
		return 0, fmt.Errorf("sampler bound to foreign context")
	}
	if s.reply == nil {
		prompt := string(fc.fed)
		script := s.model.rt.Script
		text := "ok"
		if script != nil {
			text = script(prompt)
		}
		seed := s.params.Seed
		if s.params.Greedy {
			seed = 1
		}
		for _, chunk := range chunkBytes(text, seed) {
			s.reply = append(s.reply, s.model.intern(chunk))
		}
		s.reply = append(s.reply, fakeEOG)
	}
	if s.idx >= len(s.reply) {
		return fakeEOG, nil
	}
	t := s.reply[s.idx]
	s.idx++
	return t, nil
}

func (s *fakeSampler) Accept(Token) {}

func (s *fakeSampler) Close() {}
