package runtime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func loadFakeModel(t *testing.T, f *Fake) Model {
	t.Helper()
	b, err := f.Init()
	require.NoError(t, err)
	m, err := b.LoadModel("/models/test.gguf", 0)
	require.NoError(t, err)
	return m
}

func TestFakeTokenizeRoundTrip(t *testing.T) {
	m := loadFakeModel(t, &Fake{})
	const text = "hello wörld, this is a prompt"

	toks, err := m.Tokenize(text, true)
	require.NoError(t, err)
	require.True(t, m.IsEOG(fakeEOG))

	var sb strings.Builder
	for _, tok := range toks {
		sb.Write(m.TokenBytes(tok))
	}
	require.Equal(t, text, sb.String())
}

func TestFakeChunkingDeterministicPerSeed(t *testing.T) {
	require.Equal(t, chunkBytes("some reply text", 7), chunkBytes("some reply text", 7))
	require.Equal(t, "some reply text", strings.Join(chunkBytes("some reply text", 3), ""))
}

func TestFakeScriptedGeneration(t *testing.T) {
	f := &Fake{Script: func(prompt string) string {
		require.Contains(t, prompt, "ping")
		return "pong"
	}}
	m := loadFakeModel(t, f)

	ctx, err := m.NewContext(ContextParams{NCtx: 128, NBatch: 32})
	require.NoError(t, err)
	defer ctx.Close()

	prompt, err := m.Tokenize("ping", false)
	require.NoError(t, err)
	require.NoError(t, ctx.Decode(prompt, 0, true))

	s, err := m.NewSampler(SamplerParams{Greedy: true})
	require.NoError(t, err)

	var out strings.Builder
	for {
		tok, err := s.Sample(ctx)
		require.NoError(t, err)
		if m.IsEOG(tok) {
			break
		}
		out.Write(m.TokenBytes(tok))
	}
	require.Equal(t, "pong", out.String())
}

func TestFakeCloseOrderTracking(t *testing.T) {
	f := &Fake{}
	m := loadFakeModel(t, f)
	ctx, err := m.NewContext(ContextParams{NCtx: 64, NBatch: 16})
	require.NoError(t, err)

	// Closing the model with a live context is the bug the worker must never
	// hit; the fake records it.
	m.Close()
	require.True(t, f.CloseOrderViolation)
	ctx.Close()
}
