package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"localagent/internal/chat"
	"localagent/internal/inference"
	"localagent/internal/observability"
	"localagent/internal/permissions"
	"localagent/internal/storage"
	"localagent/internal/tools"
)

// Generator is the slice of the inference engine the agent needs.
type Generator interface {
	Generate(messages []chat.Message, params inference.GenerationParams) (<-chan inference.StreamToken, *inference.Stop, error)
}

// Config bounds one agent run.
type Config struct {
	// MaxIterations caps think→act cycles per user turn.
	MaxIterations int
	// MaxRunDuration caps wall-clock time per user turn.
	MaxRunDuration time.Duration
	// ToolTimeout caps a single tool execution.
	ToolTimeout time.Duration
	// HistoryWindow is how many trailing conversation messages enter the
	// prompt.
	HistoryWindow int
	// Persona is the user-configured base system prompt.
	Persona string
	// GenerateTitles enables the post-first-reply title generation.
	GenerateTitles bool
}

func (c *Config) setDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxRunDuration <= 0 {
		c.MaxRunDuration = 300 * time.Second
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 30 * time.Second
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 40
	}
}

// maxToolResultChars caps the formatted tool result injected back into the
// conversation.
const maxToolResultChars = 4000

// Loop drives bounded think→act→observe→reflect cycles for one conversation
// at a time.
type Loop struct {
	Gen       Generator
	Tools     *tools.Registry
	Perms     *permissions.Manager
	Compactor *Compactor
	Cfg       Config

	// OnDelta receives streamed text as it arrives, for live rendering.
	OnDelta func(string)

	// stopAll mirrors the per-generation stop flag so the UI can signal
	// without holding the current stream's handle.
	stopAll atomic.Bool

	mu          sync.Mutex
	currentStop *inference.Stop
}

// Stop cancels the in-flight generation (if any) and ends the run at the
// next iteration boundary.
func (l *Loop) Stop() {
	l.stopAll.Store(true)
	l.mu.Lock()
	if l.currentStop != nil {
		l.currentStop.Cancel()
	}
	l.mu.Unlock()
}

func (l *Loop) setCurrentStop(s *inference.Stop) {
	l.mu.Lock()
	l.currentStop = s
	l.mu.Unlock()
}

// Run executes one user turn: the last conversation message is expected to be
// the user's. Streamed text and synthetic messages are appended to conv; unless
// the run is cancelled (context cancelled or Stop called), it leaves a
// user-visible assistant message explaining its outcome. A cancelled run
// returns without adding one.
func (l *Loop) Run(ctx context.Context, conv *storage.Conversation, params inference.GenerationParams) (*RunContext, error) {
	l.Cfg.setDefaults()
	l.stopAll.Store(false)

	tracer := otel.Tracer("agent")
	ctx, span := tracer.Start(ctx, "agent.run")
	defer span.End()
	ctx = observability.WithConversationID(ctx, conv.ID)

	run := NewRunContext()
	comp := l.Compactor
	if comp == nil {
		comp = &Compactor{Gen: l.Gen}
	}
	logger := observability.LoggerWithTrace(ctx)

	defer func() {
		// Never leave a dangling empty assistant message behind.
		if last := conv.LastMessage(); last != nil && last.Role == chat.RoleAssistant && strings.TrimSpace(last.Content) == "" {
			conv.Messages = conv.Messages[:len(conv.Messages)-1]
		}
		span.SetAttributes(
			attribute.Int("iterations", run.Iteration),
			attribute.Int("tool_calls", len(run.ToolHistory)),
			attribute.Int("compressions", run.CompressionCount),
		)
	}()

	for {
		run.Iteration++

		// Guard checks.
		if ctx.Err() != nil || l.stopAll.Load() {
			logger.Info().Int("iteration", run.Iteration).Msg("agent_cancelled")
			return run, nil
		}
		if run.Iteration > l.Cfg.MaxIterations {
			l.finish(conv, "I reached the iteration limit for this request. "+summarizeHistory(run))
			return run, nil
		}
		if run.Elapsed() >= l.Cfg.MaxRunDuration {
			l.finish(conv, "I ran out of time for this request. "+summarizeHistory(run))
			return run, nil
		}
		if run.IsStuck() {
			l.finish(conv, "I keep repeating the same actions without progress, so I stopped. "+summarizeHistory(run))
			logger.Warn().Int("iteration", run.Iteration).Msg("agent_stuck")
			return run, nil
		}

		// Prompt assembly plus the proactive compression check.
		msgs := l.buildPrompt(conv, run)
		if params.MaxContextSize > 0 &&
			EstimateTokens(msgs) > int(0.75*float64(params.MaxContextSize)) &&
			run.CompressionCount == 0 {
			logger.Info().Int("estimate", EstimateTokens(msgs)).Msg("agent_proactive_compaction")
			comp.Compact(conv, false)
			run.CompressionCount++
			run.Iteration--
			continue
		}

		stream, stop, err := l.Gen.Generate(msgs, params)
		if err != nil {
			run.ConsecutiveErrors++
			logger.Error().Err(err).Int("streak", run.ConsecutiveErrors).Msg("agent_generate_failed")
			if run.ConsecutiveErrors >= maxConsecutiveErrors {
				l.finish(conv, "Inference failed repeatedly: "+err.Error())
				return run, nil
			}
			l.appendSystem(conv, "Generation failed: "+err.Error()+". Try again, keeping the reply short.")
			continue
		}

		conv.AddMessage(chat.NewMessage(chat.RoleAssistant, ""))
		l.setCurrentStop(stop)
		terminal := l.drain(ctx, conv, stream, stop)
		l.setCurrentStop(nil)

		assistant := conv.LastMessage()
		run.LastResponse = assistant.Content

		switch terminal.Kind {
		case inference.KindError:
			run.ConsecutiveErrors++
			logger.Error().Str("err", terminal.Err).Int("streak", run.ConsecutiveErrors).Msg("agent_stream_error")
			if run.ConsecutiveErrors >= maxConsecutiveErrors {
				assistant.Content = "The model failed repeatedly while generating a reply: " + terminal.Err
				return run, nil
			}
			l.appendSystem(conv, "The previous generation failed ("+terminal.Err+"). Try again.")
			continue

		case inference.KindTruncated:
			logger.Warn().Int("generated", terminal.Generated).Int("limit", terminal.Limit).Msg("agent_truncated")
			if run.CompressionCount < maxCompressionsPerTurn {
				run.CompressionCount++
				comp.Compact(conv, run.CompressionCount > 1)
				continue
			}
			// Out of compression budget: the partial text stands.
			return run, nil
		}

		text := assistant.Content

		// Garbage check.
		if looksCorrupted(text) {
			logger.Warn().Int("len", len(text)).Msg("agent_garbage_output")
			assistant.Content = corruptedReplacement
			return run, nil
		}

		// Tool-call extraction.
		call := tools.ExtractCall(text)
		if call == nil {
			if tools.LooksLikeToolAttempt(text) && run.ConsecutiveErrors < 2 {
				run.ConsecutiveErrors++
				logger.Warn().Msg("agent_malformed_tool_call")
				l.appendSystem(conv, formatReminder)
				continue
			}
			// Final answer.
			l.maybeGenerateTitle(conv, logger)
			return run, nil
		}

		l.handleToolCall(ctx, conv, run, call)
	}
}

// drain consumes the token stream into the trailing assistant message,
// propagating context cancellation to the per-generation flag.
func (l *Loop) drain(ctx context.Context, conv *storage.Conversation, stream <-chan inference.StreamToken, stop *inference.Stop) inference.StreamToken {
	assistant := conv.LastMessage()
	ctxDone := ctx.Done()
	for {
		select {
		case tok, ok := <-stream:
			if !ok {
				return inference.Done()
			}
			if tok.IsTerminal() {
				return tok
			}
			assistant.Content += tok.Text
			if l.OnDelta != nil {
				l.OnDelta(tok.Text)
			}
		case <-ctxDone:
			stop.Cancel()
			// Keep draining; the decoder terminates within one token.
			ctxDone = nil
		}
	}
}

// buildPrompt takes the trailing history window and prepends the dynamic
// system preamble.
func (l *Loop) buildPrompt(conv *storage.Conversation, run *RunContext) []chat.Message {
	history := conv.Messages
	if len(history) > l.Cfg.HistoryWindow {
		history = history[len(history)-l.Cfg.HistoryWindow:]
	}
	msgs := make([]chat.Message, 0, len(history)+1)
	msgs = append(msgs, chat.NewMessage(chat.RoleSystem, BuildSystemPrompt(l.Cfg.Persona, l.Tools.List(), run)))
	msgs = append(msgs, history...)
	return msgs
}

// handleToolCall arbitrates, executes, and feeds the outcome back into the
// conversation.
func (l *Loop) handleToolCall(ctx context.Context, conv *storage.Conversation, run *RunContext, call *tools.Call) {
	logger := observability.LoggerWithTrace(ctx)
	assistant := conv.LastMessage()

	req := permissions.NewRequest(call.Name, call.Params)
	decision := l.Perms.Check(ctx, req)
	if decision != permissions.Approved {
		run.RecordTool(ToolHistoryEntry{
			Tool:    call.Name,
			Params:  call.Params,
			Outcome: "Permission denied (" + decision.String() + ")",
			IsError: true,
		})
		logger.Warn().Str("tool", call.Name).Str("decision", decision.String()).Msg("agent_tool_denied")
		assistant.Content = fmt.Sprintf("I asked to use %s, but it was not approved.", call.Name)
		l.appendSystem(conv, deniedPrompt)
		return
	}

	tool, ok := l.Tools.Get(call.Name)
	if !ok {
		run.RecordTool(ToolHistoryEntry{
			Tool:    call.Name,
			Params:  call.Params,
			Outcome: "tool not found",
			IsError: true,
		})
		logger.Warn().Str("tool", call.Name).Msg("agent_tool_missing")
		l.appendSystem(conv, buildMissingToolPrompt(call.Name, l.Tools.Names()))
		return
	}

	argsJSON, _ := json.Marshal(call.Params)
	logger.Info().Str("tool", call.Name).RawJSON("args", observability.RedactToolArgs(argsJSON)).Msg("agent_tool_call")

	start := time.Now()
	res, err := l.executeWithTimeout(ctx, tool, call.Params)
	elapsed := time.Since(start)

	if err != nil {
		run.RecordTool(ToolHistoryEntry{
			Tool:     call.Name,
			Params:   call.Params,
			Outcome:  err.Error(),
			IsError:  true,
			Duration: elapsed,
		})
		logger.Error().Str("tool", call.Name).Err(err).Dur("elapsed", elapsed).Msg("agent_tool_failed")
		assistant.Content = fmt.Sprintf("Tool %s failed: %s", call.Name, err.Error())
		if run.ConsecutiveErrors < 4 {
			l.appendSystem(conv, buildReflectionPrompt(call.Name, err.Error(), false))
		} else {
			l.appendSystem(conv, tooManyErrorsPrompt)
		}
		return
	}

	run.RecordTool(ToolHistoryEntry{
		Tool:     call.Name,
		Params:   call.Params,
		Outcome:  res.Message,
		Duration: elapsed,
	})
	logger.Info().Str("tool", call.Name).Dur("elapsed", elapsed).Str("message", res.Message).Msg("agent_tool_done")

	// Replace the raw call text with a terse user-visible summary, then
	// inject the formatted result as a synthetic system observation.
	target := req.Target
	if target != "" {
		target = " (" + target + ")"
	}
	assistant.Content = fmt.Sprintf("→ %s%s: %s", call.Name, target, res.Message)
	l.appendSystem(conv, "[TOOL_RESULT] "+call.Name+": "+formatToolResult(res))
}

// executeWithTimeout runs the tool under the configured deadline.
func (l *Loop) executeWithTimeout(ctx context.Context, tool tools.Tool, params map[string]any) (tools.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, l.Cfg.ToolTimeout)
	defer cancel()

	type outcome struct {
		res tools.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := tool.Execute(cctx, params)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-cctx.Done():
		return tools.Result{}, tools.Errf(tools.ErrTimeout, "tool exceeded %s", l.Cfg.ToolTimeout)
	}
}

// formatToolResult renders a result for the model, capped to keep the
// conversation small.
func formatToolResult(res tools.Result) string {
	out := res.Message
	if len(res.Data) > 0 {
		if b, err := json.Marshal(res.Data); err == nil {
			out += "\n" + string(b)
		}
	}
	if len(out) > maxToolResultChars {
		out = out[:maxToolResultChars] + "\n[... result truncated]"
	}
	return out
}

// appendSystem adds a synthetic observation/instruction message.
func (l *Loop) appendSystem(conv *storage.Conversation, content string) {
	conv.AddMessage(chat.NewMessage(chat.RoleSystem, content))
}

// finish writes a terminal user-visible assistant message.
func (l *Loop) finish(conv *storage.Conversation, text string) {
	if last := conv.LastMessage(); last != nil && last.Role == chat.RoleAssistant && strings.TrimSpace(last.Content) == "" {
		last.Content = text
		conv.Touch()
		return
	}
	conv.AddMessage(chat.NewMessage(chat.RoleAssistant, text))
}

// summarizeHistory condenses the run's tool usage for a closing message.
func summarizeHistory(run *RunContext) string {
	if len(run.ToolHistory) == 0 {
		return ""
	}
	var parts []string
	for _, entry := range run.ToolHistory {
		status := "ok"
		if entry.IsError {
			status = "failed"
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", entry.Tool, status))
	}
	return "Tools used: " + strings.Join(parts, ", ") + "."
}

// maybeGenerateTitle runs the small secondary generation after the first
// successful reply in a conversation that still has its provisional title.
func (l *Loop) maybeGenerateTitle(conv *storage.Conversation, logger *zerolog.Logger) {
	if !l.Cfg.GenerateTitles || !conv.NeedsTitle() {
		return
	}
	var firstUser, reply string
	for _, m := range conv.Messages {
		if m.Role == chat.RoleUser {
			firstUser = m.Content
			break
		}
	}
	if last := conv.LastMessage(); last != nil && last.Role == chat.RoleAssistant {
		reply = last.Content
	}
	if firstUser == "" || reply == "" {
		return
	}
	title, err := GenerateTitle(l.Gen, firstUser, reply)
	if err != nil {
		logger.Warn().Err(err).Msg("agent_title_failed")
		return
	}
	conv.Title = title
	conv.Touch()
	logger.Info().Str("title", title).Msg("agent_title_generated")
}
