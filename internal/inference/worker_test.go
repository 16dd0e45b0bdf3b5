package inference

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"localagent/internal/chat"
	"localagent/internal/gguf"
	rt "localagent/internal/runtime"
)

func writeModelFile(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 0, 24)
	buf = binary.LittleEndian.AppendUint32(buf, gguf.Magic)
	buf = binary.LittleEndian.AppendUint32(buf, 3)
	buf = binary.LittleEndian.AppendUint64(buf, 10)
	buf = binary.LittleEndian.AppendUint64(buf, 5)
	path := filepath.Join(t.TempDir(), "model.gguf")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func newTestEngine(t *testing.T, fake *rt.Fake) *Engine {
	t.Helper()
	e := New(fake)
	t.Cleanup(e.Close)
	require.NoError(t, e.Init())
	return e
}

func loadTestModel(t *testing.T, e *Engine) LoadedModelInfo {
	t.Helper()
	info, err := e.LoadModel(context.Background(), writeModelFile(t), 0)
	require.NoError(t, err)
	return info
}

// collect drains a token stream into its text and terminal value.
func collect(t *testing.T, stream <-chan StreamToken) (string, StreamToken) {
	t.Helper()
	var sb strings.Builder
	for tok := range stream {
		if tok.IsTerminal() {
			return sb.String(), tok
		}
		sb.WriteString(tok.Text)
	}
	t.Fatal("stream closed without terminal token")
	return "", StreamToken{}
}

func TestGenerateBeforeInit(t *testing.T) {
	e := New(&rt.Fake{})
	defer e.Close()
	_, _, err := e.Generate([]chat.Message{chat.NewMessage(chat.RoleUser, "hi")}, DefaultParams())
	require.True(t, errors.Is(err, &EngineError{Kind: KindBackendNotInitialized}))
}

func TestLoadModelMissingFile(t *testing.T) {
	e := newTestEngine(t, &rt.Fake{})
	_, err := e.LoadModel(context.Background(), filepath.Join(t.TempDir(), "missing.gguf"), 0)
	require.Equal(t, KindModelLoad, KindOf(err))
}

func TestLoadModelBadHeader(t *testing.T) {
	e := newTestEngine(t, &rt.Fake{})
	path := filepath.Join(t.TempDir(), "bad.gguf")
	require.NoError(t, os.WriteFile(path, []byte("not a model at all, but long enough"), 0o644))
	_, err := e.LoadModel(context.Background(), path, 0)
	require.Equal(t, KindModelValidation, KindOf(err))
}

func TestLoadModelRuntimeRefuses(t *testing.T) {
	fake := &rt.Fake{LoadErr: errors.New("unsupported quantization")}
	e := newTestEngine(t, fake)
	_, err := e.LoadModel(context.Background(), writeModelFile(t), 0)
	require.Equal(t, KindModelLoad, KindOf(err))
	require.False(t, e.IsModelLoaded())
}

func TestInitFailureLeavesWorkerResponsive(t *testing.T) {
	fake := &rt.Fake{InitErr: errors.New("no accelerator")}
	e := New(fake)
	defer e.Close()
	require.Equal(t, KindBackendInit, KindOf(e.Init()))

	_, err := e.LoadModel(context.Background(), writeModelFile(t), 0)
	require.Equal(t, KindBackendNotInitialized, KindOf(err))
}

func TestHelloWorld(t *testing.T) {
	fake := &rt.Fake{Script: func(string) string { return "ok" }}
	e := newTestEngine(t, fake)
	info := loadTestModel(t, e)
	require.Equal(t, 32000, info.VocabSize)

	stream, _, err := e.Generate([]chat.Message{chat.NewMessage(chat.RoleUser, "Say 'ok'")}, DefaultParams())
	require.NoError(t, err)

	text, terminal := collect(t, stream)
	require.Contains(t, text, "ok")
	require.Equal(t, KindDone, terminal.Kind)
}

func TestGenerateRequiresNonAssistantMessage(t *testing.T) {
	e := newTestEngine(t, &rt.Fake{})
	loadTestModel(t, e)

	_, _, err := e.Generate([]chat.Message{chat.NewMessage(chat.RoleAssistant, "hello")}, DefaultParams())
	require.Error(t, err)

	_, _, err = e.Generate(nil, DefaultParams())
	require.Error(t, err)
}

func TestSamplerDeterminism(t *testing.T) {
	fake := &rt.Fake{Script: func(string) string { return "same reply, every time — 日本語も" }}
	e := newTestEngine(t, fake)
	loadTestModel(t, e)

	run := func(p GenerationParams) []StreamToken {
		stream, _, err := e.Generate([]chat.Message{chat.NewMessage(chat.RoleUser, "go")}, p)
		require.NoError(t, err)
		var toks []StreamToken
		for tok := range stream {
			toks = append(toks, tok)
		}
		return toks
	}

	p := DefaultParams()
	p.Seed = 42
	require.Equal(t, run(p), run(p))

	greedy := FastParams()
	greedy.Seed = 1
	first := run(greedy)
	greedy.Seed = 99999
	require.Equal(t, first, run(greedy))
}

func TestTruncationAtBudget(t *testing.T) {
	fake := &rt.Fake{Script: func(string) string { return strings.Repeat("long output ", 50) }}
	e := newTestEngine(t, fake)
	loadTestModel(t, e)

	p := DefaultParams()
	p.MaxTokens = 5
	stream, _, err := e.Generate([]chat.Message{chat.NewMessage(chat.RoleUser, "go")}, p)
	require.NoError(t, err)

	_, terminal := collect(t, stream)
	require.Equal(t, KindTruncated, terminal.Kind)
	require.Equal(t, 5, terminal.Generated)
	require.Equal(t, 5, terminal.Limit)
}

func TestCancellationLatency(t *testing.T) {
	fake := &rt.Fake{Script: func(string) string { return strings.Repeat("x", 4000) }}
	e := newTestEngine(t, fake)
	loadTestModel(t, e)

	stream, stop, err := e.Generate([]chat.Message{chat.NewMessage(chat.RoleUser, "go")}, DefaultParams())
	require.NoError(t, err)

	// Read one token, then cancel. The decoder checks the flag between
	// tokens, so at most one further sampling step may happen after Cancel
	// returns.
	first := <-stream
	require.Equal(t, KindToken, first.Kind)
	stop.Cancel()
	atCancel := fake.SampleCalls()

	var terminal *StreamToken
	for tok := range stream {
		if tok.IsTerminal() {
			cp := tok
			terminal = &cp
			break
		}
	}
	require.NotNil(t, terminal, "no terminal token after cancel")
	require.Equal(t, KindDone, terminal.Kind)
	require.LessOrEqual(t, fake.SampleCalls()-atCancel, int64(1))
}

func TestContextReuseAndRebuild(t *testing.T) {
	fake := &rt.Fake{Script: func(string) string { return "hi" }}
	e := newTestEngine(t, fake)
	loadTestModel(t, e)

	gen := func(p GenerationParams) {
		stream, _, err := e.Generate([]chat.Message{chat.NewMessage(chat.RoleUser, "go")}, p)
		require.NoError(t, err)
		_, terminal := collect(t, stream)
		require.Equal(t, KindDone, terminal.Kind)
	}

	big := DefaultParams() // snaps to 8192
	gen(big)
	require.Equal(t, uint64(1), e.Metrics().ContextBuilds)

	small := DefaultParams()
	small.MaxTokens = 64 // fits the existing context
	gen(small)
	m := e.Metrics()
	require.Equal(t, uint64(1), m.ContextBuilds)
	require.Equal(t, uint64(1), m.ContextReuses)

	larger := DefaultParams()
	larger.MaxTokens = 20000
	larger.MaxContextSize = 32768 // forces a bigger context
	gen(larger)
	m = e.Metrics()
	require.Equal(t, uint64(2), m.ContextBuilds)
	require.Equal(t, uint64(1), m.ContextReuses)
	require.Equal(t, 1, fake.ContextsClosed)
}

func TestUnloadAndShutdownDropOrder(t *testing.T) {
	fake := &rt.Fake{Script: func(string) string { return "hi" }}
	e := New(fake)
	require.NoError(t, e.Init())
	_, err := e.LoadModel(context.Background(), writeModelFile(t), 0)
	require.NoError(t, err)

	stream, _, err := e.Generate([]chat.Message{chat.NewMessage(chat.RoleUser, "go")}, DefaultParams())
	require.NoError(t, err)
	collect(t, stream)

	e.Unload()
	require.False(t, e.IsModelLoaded())
	require.False(t, fake.CloseOrderViolation)
	require.Equal(t, fake.ContextsCreated, fake.ContextsClosed)

	e.Close()
	require.False(t, fake.CloseOrderViolation)
}

func TestGenerateAfterUnloadFails(t *testing.T) {
	e := newTestEngine(t, &rt.Fake{})
	loadTestModel(t, e)
	e.Unload()

	_, _, err := e.Generate([]chat.Message{chat.NewMessage(chat.RoleUser, "hi")}, DefaultParams())
	require.Equal(t, KindNoModelLoaded, KindOf(err))
}

func TestLoadModelContextCancelled(t *testing.T) {
	e := newTestEngine(t, &rt.Fake{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	// The worker may still complete the load; the call itself must respect ctx.
	_, err := e.LoadModel(ctx, writeModelFile(t), 0)
	if err != nil {
		require.True(t, errors.Is(err, context.DeadlineExceeded) || KindOf(err) == KindModelLoad)
	}
}
