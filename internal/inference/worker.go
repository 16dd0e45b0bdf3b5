package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"localagent/internal/chat"
	"localagent/internal/gguf"
	rt "localagent/internal/runtime"
)

// LoadedModelInfo describes the weights currently owned by the worker.
// Read-only after load.
type LoadedModelInfo struct {
	Path          string `json:"path"`
	VocabSize     int    `json:"vocab_size"`
	EmbeddingDim  int    `json:"embedding_dim"`
	ContextLength int    `json:"context_length"`
	ParamCount    uint64 `json:"param_count"`
	SizeBytes     int64  `json:"size_bytes"`
}

type cmdInit struct{ reply chan error }

type loadResult struct {
	info LoadedModelInfo
	err  error
}

type cmdLoad struct {
	path      string
	gpuLayers int
	reply     chan loadResult
}

type cmdUnload struct{ reply chan struct{} }

type cmdGenerate struct {
	messages []chat.Message
	params   GenerationParams
	sink     chan StreamToken
	stop     *Stop
}

type cmdShutdown struct{ reply chan struct{} }

// Engine is the inference worker facade. All runtime handles live on a single
// dedicated goroutine; the methods here only exchange commands with it, so
// the Engine is safe to share.
//
// Commands are processed strictly in submission order: a LOAD can never
// overlap an in-flight GENERATE.
type Engine struct {
	runtime rt.Runtime
	cmds    chan any
	done    chan struct{}
	cm      *contextManager

	mu          sync.Mutex
	started     bool
	closed      bool
	modelInfo   *LoadedModelInfo
	modelLoaded bool
}

// New creates the engine and spawns its worker goroutine. Call Init before
// loading models.
func New(runtime rt.Runtime) *Engine {
	e := &Engine{
		runtime: runtime,
		cmds:    make(chan any, 16),
		done:    make(chan struct{}),
		cm:      newContextManager(),
	}
	go e.workerLoop()
	return e
}

// Init creates the backend singleton. Idempotent.
func (e *Engine) Init() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return engineErr(KindWorker, "engine closed", nil)
	}
	e.mu.Unlock()

	reply := make(chan error, 1)
	e.cmds <- cmdInit{reply: reply}
	err := <-reply
	if err == nil {
		e.mu.Lock()
		e.started = true
		e.mu.Unlock()
	}
	return err
}

// LoadModel validates the file header on the calling goroutine, then hands
// the load to the worker. Any existing context and model are dropped first.
func (e *Engine) LoadModel(ctx context.Context, path string, gpuLayers int) (LoadedModelInfo, error) {
	e.mu.Lock()
	started, closed := e.started, e.closed
	e.mu.Unlock()
	if closed {
		return LoadedModelInfo{}, engineErr(KindWorker, "engine closed", nil)
	}
	if !started {
		return LoadedModelInfo{}, engineErr(KindBackendNotInitialized, "", nil)
	}

	st, err := os.Stat(path)
	if err != nil {
		return LoadedModelInfo{}, engineErr(KindModelLoad, path, err)
	}
	if st.Size() == 0 {
		return LoadedModelInfo{}, engineErr(KindModelLoad, fmt.Sprintf("%s is empty", path), nil)
	}
	if _, err := gguf.ValidateHeader(path); err != nil {
		return LoadedModelInfo{}, engineErr(KindModelValidation, path, err)
	}

	reply := make(chan loadResult, 1)
	e.cmds <- cmdLoad{path: path, gpuLayers: gpuLayers, reply: reply}

	select {
	case res := <-reply:
		if res.err != nil {
			return LoadedModelInfo{}, res.err
		}
		e.mu.Lock()
		info := res.info
		e.modelInfo = &info
		e.modelLoaded = true
		e.mu.Unlock()
		return res.info, nil
	case <-ctx.Done():
		return LoadedModelInfo{}, ctx.Err()
	}
}

// Unload drops the context, then the model.
func (e *Engine) Unload() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	reply := make(chan struct{}, 1)
	e.cmds <- cmdUnload{reply: reply}
	<-reply
	e.mu.Lock()
	e.modelInfo = nil
	e.modelLoaded = false
	e.mu.Unlock()
}

// ModelInfo returns the loaded model description, if any.
func (e *Engine) ModelInfo() (LoadedModelInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.modelInfo == nil {
		return LoadedModelInfo{}, false
	}
	return *e.modelInfo, true
}

// IsModelLoaded reports whether a model is resident.
func (e *Engine) IsModelLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modelLoaded
}

// validateMessages enforces the minimal shape for generation: at least one
// non-assistant message. Synthetic system observations may appear anywhere;
// the agent's prompt assembly keeps the real system preamble first.
func validateMessages(messages []chat.Message) error {
	for _, m := range messages {
		if m.Role != chat.RoleAssistant {
			return nil
		}
	}
	return fmt.Errorf("generation requires at least one non-assistant message")
}

// Generate enqueues a streaming generation. Tokens arrive on the returned
// channel, which is closed after the terminal value. The returned Stop flag
// cancels cooperatively.
func (e *Engine) Generate(messages []chat.Message, params GenerationParams) (<-chan StreamToken, *Stop, error) {
	e.mu.Lock()
	started, loaded, closed := e.started, e.modelLoaded, e.closed
	e.mu.Unlock()
	if closed {
		return nil, nil, engineErr(KindWorker, "engine closed", nil)
	}
	if !started {
		return nil, nil, engineErr(KindBackendNotInitialized, "", nil)
	}
	if !loaded {
		return nil, nil, engineErr(KindNoModelLoaded, "", nil)
	}
	if err := validateMessages(messages); err != nil {
		return nil, nil, engineErr(KindWorker, "invalid messages", err)
	}

	params.Normalize()
	sink := make(chan StreamToken, 256)
	stop := NewStop()
	msgs := make([]chat.Message, len(messages))
	copy(msgs, messages)
	e.cmds <- cmdGenerate{messages: msgs, params: params, sink: sink, stop: stop}
	return sink, stop, nil
}

// Metrics returns a snapshot of context reuse counters.
func (e *Engine) Metrics() Metrics { return e.cm.metrics() }

// Close shuts the worker down, releasing context, model, and backend in that
// order, and waits for the goroutine to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	reply := make(chan struct{}, 1)
	e.cmds <- cmdShutdown{reply: reply}
	<-reply
	<-e.done
}

// workerLoop is the single owner of backend, model, and context. It never
// panics across a command: every failure becomes a reply value or a stream
// error.
func (e *Engine) workerLoop() {
	defer close(e.done)

	var (
		backend rt.Backend
		model   rt.Model
	)

	closeModel := func() {
		// The context borrows the model's tensors; hard drop order.
		e.cm.drop()
		if model != nil {
			model.Close()
			model = nil
		}
	}

	for raw := range e.cmds {
		switch cmd := raw.(type) {
		case cmdInit:
			if backend != nil {
				cmd.reply <- nil
				continue
			}
			b, err := e.runtime.Init()
			if err != nil {
				log.Error().Err(err).Msg("backend_init_failed")
				cmd.reply <- engineErr(KindBackendInit, "", err)
				continue
			}
			backend = b
			log.Info().Int("n_threads", e.cm.nThreads).Msg("inference_worker_ready")
			cmd.reply <- nil

		case cmdLoad:
			if backend == nil {
				cmd.reply <- loadResult{err: engineErr(KindBackendNotInitialized, "", nil)}
				continue
			}
			closeModel()
			m, err := backend.LoadModel(cmd.path, cmd.gpuLayers)
			if err != nil {
				log.Error().Str("path", cmd.path).Err(err).Msg("model_load_failed")
				cmd.reply <- loadResult{err: engineErr(KindModelLoad, cmd.path, err)}
				continue
			}
			model = m
			mi := m.Info()
			info := LoadedModelInfo{
				Path:          cmd.path,
				VocabSize:     mi.VocabSize,
				EmbeddingDim:  mi.EmbeddingDim,
				ContextLength: mi.TrainContextLength,
				ParamCount:    mi.ParamCount,
				SizeBytes:     mi.SizeBytes,
			}
			log.Info().
				Str("path", cmd.path).
				Int("context_length", info.ContextLength).
				Uint64("param_count", info.ParamCount).
				Msg("model_loaded")
			cmd.reply <- loadResult{info: info}

		case cmdUnload:
			closeModel()
			log.Info().Msg("model_unloaded")
			cmd.reply <- struct{}{}

		case cmdGenerate:
			e.handleGenerate(model, backend, cmd)

		case cmdShutdown:
			closeModel()
			if backend != nil {
				backend.Close()
				backend = nil
			}
			cmd.reply <- struct{}{}
			return
		}
	}
}

func (e *Engine) handleGenerate(model rt.Model, backend rt.Backend, cmd cmdGenerate) {
	defer close(cmd.sink)

	fail := func(tok StreamToken) {
		select {
		case cmd.sink <- tok:
		default:
		}
	}

	if backend == nil {
		fail(StreamError(engineErr(KindBackendNotInitialized, "", nil).Error()))
		return
	}
	if model == nil {
		fail(StreamError(engineErr(KindNoModelLoaded, "", nil).Error()))
		return
	}

	prompt, err := model.FormatChat(toRuntimeMessages(cmd.messages))
	if err != nil {
		fail(StreamError(engineErr(KindTokenization, "chat template", err).Error()))
		return
	}
	tokens, err := model.Tokenize(prompt, true)
	if err != nil {
		fail(StreamError(engineErr(KindTokenization, "", err).Error()))
		return
	}

	ctx, err := e.cm.acquire(model, len(tokens), cmd.params)
	if err != nil {
		// A failed acquire leaves no context; the next call rebuilds.
		fail(StreamError(err.Error()))
		return
	}

	d := &decoder{model: model, ctx: ctx, sink: cmd.sink, stop: cmd.stop}
	d.run(tokens, cmd.params)
}

func toRuntimeMessages(messages []chat.Message) []rt.ChatMessage {
	out := make([]rt.ChatMessage, len(messages))
	for i, m := range messages {
		out[i] = rt.ChatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}
