package inference

import (
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	rt "localagent/internal/runtime"
)

// contextManager decides whether the worker's persistent context can serve a
// generation or must be rebuilt. Building a context allocates the whole KV
// cache on the accelerator, which costs seconds and significant memory, so
// reuse across turns is the single largest latency win.
type contextManager struct {
	ctx      rt.Context
	nCtx     int
	nBatch   int
	nThreads int

	builds atomic.Uint64
	reuses atomic.Uint64
}

func newContextManager() *contextManager {
	return &contextManager{nThreads: threadCount()}
}

// threadCount estimates physical cores: half the logical count, at least 2,
// capped at 16. Computed once at worker start.
func threadCount() int {
	n := runtime.NumCPU() / 2
	if n < 2 {
		n = 2
	}
	if n > 16 {
		n = 16
	}
	return n
}

// sizeFor computes the (nCtx, nBatch) a generation needs.
func sizeFor(promptTokens int, p GenerationParams, trainCtx int) (nCtx, nBatch int) {
	effectiveMax := p.MaxContextSize
	if trainCtx > 0 && trainCtx < effectiveMax {
		effectiveMax = trainCtx
	}

	needed := promptTokens + p.MaxTokens
	if min := promptTokens + 256; needed < min {
		needed = min
	}
	if needed > effectiveMax {
		needed = effectiveMax
	}

	// Snap up to the next standard size that still fits the effective max;
	// oversizing slightly makes the built KV cache reusable for later turns.
	snapped := 0
	for _, s := range ContextSizes {
		if s >= needed && s <= effectiveMax {
			snapped = s
			break
		}
	}
	if snapped != 0 {
		needed = snapped
	}

	nBatch = batchFor(promptTokens)
	if nBatch > needed {
		nBatch = needed
	}
	return needed, nBatch
}

// batchFor is a step function of prompt length: short prompts afford large
// prefill batches, long prompts keep the scratch buffers small.
func batchFor(promptTokens int) int {
	switch {
	case promptTokens < 512:
		return 2048
	case promptTokens < 2048:
		return 1024
	case promptTokens < 4096:
		return 512
	default:
		return 256
	}
}

// acquire returns a context able to hold promptTokens plus the generation
// budget, reusing the stored context when it is large enough in both
// dimensions. The KV cache is always cleared: reuse saves the allocation, not
// the contents.
func (cm *contextManager) acquire(model rt.Model, promptTokens int, p GenerationParams) (rt.Context, error) {
	nCtx, nBatch := sizeFor(promptTokens, p, model.Info().TrainContextLength)

	if cm.ctx != nil && cm.nCtx >= nCtx && cm.nBatch >= nBatch {
		cm.reuses.Add(1)
		log.Debug().
			Int("n_ctx", cm.nCtx).
			Int("n_batch", cm.nBatch).
			Int("needed_ctx", nCtx).
			Int("needed_batch", nBatch).
			Msg("context_reused")
		cm.ctx.ClearKV()
		return cm.ctx, nil
	}

	// Free the old KV cache before allocating the new one.
	cm.drop()

	ctx, err := model.NewContext(rt.ContextParams{NCtx: nCtx, NBatch: nBatch, NThreads: cm.nThreads})
	if err != nil {
		return nil, engineErr(KindContextCreate, "", err)
	}
	cm.ctx = ctx
	cm.nCtx = nCtx
	cm.nBatch = nBatch
	cm.builds.Add(1)
	log.Info().
		Int("n_ctx", nCtx).
		Int("n_batch", nBatch).
		Int("n_threads", cm.nThreads).
		Msg("context_created")
	ctx.ClearKV()
	return ctx, nil
}

// drop closes the stored context, if any. Must run before the model closes.
func (cm *contextManager) drop() {
	if cm.ctx == nil {
		return
	}
	cm.ctx.Close()
	cm.ctx = nil
	cm.nCtx = 0
	cm.nBatch = 0
}

// Metrics is a snapshot of context-manager counters, used to observe the
// reuse/rebuild behavior from the outside.
type Metrics struct {
	ContextBuilds uint64
	ContextReuses uint64
}

func (cm *contextManager) metrics() Metrics {
	return Metrics{ContextBuilds: cm.builds.Load(), ContextReuses: cm.reuses.Load()}
}
