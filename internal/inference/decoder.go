package inference

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/rs/zerolog/log"

	rt "localagent/internal/runtime"
)

// sinkTimeout bounds how long a token send may block. A receiver that has
// stopped draining without cancelling is treated as dropped.
const sinkTimeout = 30 * time.Second

// decoder runs one generation: prefill, the sampling loop, UTF-8 re-assembly,
// and terminal signaling. It owns no state beyond the call.
type decoder struct {
	model rt.Model
	ctx   rt.Context
	sink  chan<- StreamToken
	stop  *Stop
}

// emit sends tok to the sink, honoring cancellation and the dropped-receiver
// guard. Returns false when the decoder should stop.
func (d *decoder) emit(tok StreamToken) bool {
	timer := time.NewTimer(sinkTimeout)
	defer timer.Stop()
	select {
	case d.sink <- tok:
		return true
	case <-d.stop.Done():
		return false
	case <-timer.C:
		log.Warn().Msg("token_sink_abandoned")
		return false
	}
}

// emitFinal sends flush text and terminal values. It ignores cancellation —
// the terminal value must reach a draining receiver even after a stop — and
// only gives up if the receiver has disappeared entirely.
func (d *decoder) emitFinal(tok StreamToken) bool {
	timer := time.NewTimer(sinkTimeout)
	defer timer.Stop()
	select {
	case d.sink <- tok:
		return true
	case <-timer.C:
		log.Warn().Msg("token_sink_abandoned")
		return false
	}
}

// drawSeed replaces a zero seed with fresh system entropy.
func drawSeed(seed uint32) uint32 {
	if seed != 0 {
		return seed
	}
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	s := binary.LittleEndian.Uint32(b[:])
	if s == 0 {
		s = 1
	}
	return s
}

func samplerParams(p GenerationParams) rt.SamplerParams {
	if p.Greedy() {
		return rt.SamplerParams{Greedy: true}
	}
	return rt.SamplerParams{
		Temperature:   p.Temperature,
		TopK:          p.TopK,
		TopP:          p.TopP,
		RepeatPenalty: p.RepeatPenalty,
		Seed:          drawSeed(p.Seed),
	}
}

// run executes the generation over an already-tokenized prompt. ctx has a
// cleared KV cache.
func (d *decoder) run(tokens []rt.Token, params GenerationParams) {
	nCtx := d.ctx.NCtx()
	nBatch := d.ctx.NBatch()

	// Keep only the prompt tail that leaves room for the output budget;
	// recent history wins.
	budget := nCtx - params.MaxTokens
	if budget < 1 {
		budget = 1
	}
	if len(tokens) > budget {
		log.Warn().
			Int("prompt_tokens", len(tokens)).
			Int("budget", budget).
			Msg("prompt_truncated")
		tokens = tokens[len(tokens)-budget:]
	}

	sampler, err := d.model.NewSampler(samplerParams(params))
	if err != nil {
		d.emitFinal(StreamError(engineErr(KindInference, "sampler", err).Error()))
		return
	}
	defer sampler.Close()

	var asm utf8Assembler
	flush := func() {
		if text := asm.Flush(); text != "" {
			d.emitFinal(TokenText(text))
		}
	}

	// Prefill in n_batch chunks; only the final prompt token needs logits.
	pos := 0
	for pos < len(tokens) {
		if d.stop.Cancelled() {
			d.emitFinal(Done())
			return
		}
		end := pos + nBatch
		if end > len(tokens) {
			end = len(tokens)
		}
		last := end == len(tokens)
		if err := d.ctx.Decode(tokens[pos:end], pos, last); err != nil {
			d.emitFinal(StreamError(engineErr(KindInference, "prefill", err).Error()))
			return
		}
		pos = end
	}

	generated := 0
	for {
		if d.stop.Cancelled() {
			flush()
			d.emitFinal(Done())
			return
		}
		if generated >= params.MaxTokens {
			flush()
			d.emitFinal(Truncated(generated, params.MaxTokens))
			return
		}

		tok, err := sampler.Sample(d.ctx)
		if err != nil {
			d.emitFinal(StreamError(engineErr(KindInference, "sample", err).Error()))
			return
		}
		if d.model.IsEOG(tok) {
			flush()
			d.emitFinal(Done())
			return
		}
		sampler.Accept(tok)
		generated++

		if text := asm.Push(d.model.TokenBytes(tok)); text != "" {
			if !d.emit(TokenText(text)) {
				if d.stop.Cancelled() {
					flush()
					d.emitFinal(Done())
				}
				return
			}
		}

		if pos >= nCtx {
			flush()
			d.emitFinal(Truncated(generated, params.MaxTokens))
			return
		}
		if err := d.ctx.Decode([]rt.Token{tok}, pos, true); err != nil {
			d.emitFinal(StreamError(engineErr(KindInference, "decode", err).Error()))
			return
		}
		pos++
	}
}
