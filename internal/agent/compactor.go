package agent

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"localagent/internal/chat"
	"localagent/internal/inference"
	"localagent/internal/storage"
)

const (
	// maxCompressionsPerTurn is the single knob preventing oscillation
	// between "truncated again" and "compress again".
	maxCompressionsPerTurn = 2

	pruneSystemThreshold = 2000
	pruneSystemKeep      = 500
	pruneMaxMessages     = 6
	pruneKeepTail        = 4

	// tier2SkipBelowChars: when tier 1 already shrank the conversation
	// under this, the model call is not worth its cost.
	tier2SkipBelowChars = 12000

	tier2LineLimit = 200
)

// Compactor shrinks the in-prompt conversation while keeping enough context
// for the task to continue. Tier 1 is zero-cost pruning; tier 2 is one model
// call producing a summary.
type Compactor struct {
	Gen Generator
}

// totalChars measures the conversation's serialized size.
func totalChars(msgs []chat.Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
	}
	return n
}

// EstimateTokens approximates token count as chars/4.
func EstimateTokens(msgs []chat.Message) int { return totalChars(msgs) / 4 }

// PruneTier1 shortens oversized system messages and elides old history.
// Returns whether anything changed.
func (c *Compactor) PruneTier1(conv *storage.Conversation) bool {
	changed := false

	for i := range conv.Messages {
		m := &conv.Messages[i]
		if m.Role != chat.RoleSystem || len(m.Content) <= pruneSystemThreshold {
			continue
		}
		keep := []rune(m.Content)
		if len(keep) > pruneSystemKeep {
			keep = keep[:pruneSystemKeep]
		}
		m.Content = fmt.Sprintf("%s\n[... truncated, original %d chars]", string(keep), len(m.Content))
		changed = true
	}

	if len(conv.Messages) > pruneMaxMessages {
		elided := len(conv.Messages) - pruneKeepTail
		tail := make([]chat.Message, pruneKeepTail)
		copy(tail, conv.Messages[len(conv.Messages)-pruneKeepTail:])
		placeholder := chat.NewMessage(chat.RoleSystem,
			fmt.Sprintf("[%d earlier messages elided to free context]", elided))
		conv.Messages = append([]chat.Message{placeholder}, tail...)
		changed = true
	}

	if changed {
		log.Info().Int("messages", len(conv.Messages)).Int("chars", totalChars(conv.Messages)).Msg("compaction_tier1")
	}
	return changed
}

// SummarizeTier2 replaces everything but the very last message with a single
// model-generated summary.
func (c *Compactor) SummarizeTier2(conv *storage.Conversation) error {
	if len(conv.Messages) < 3 || c.Gen == nil {
		return nil
	}

	var lines []string
	nonSystem := 0
	for _, m := range conv.Messages {
		if m.Role != chat.RoleSystem {
			nonSystem++
		}
	}
	seen := 0
	for _, m := range conv.Messages {
		if m.Role == chat.RoleSystem {
			continue
		}
		seen++
		if seen > nonSystem-2 {
			// The last two non-system messages stay out of the summary
			// input; only the very last message of the conversation is
			// kept verbatim after the summary.
			break
		}
		tag := "[U]"
		if m.Role == chat.RoleAssistant {
			tag = "[A]"
		}
		content := strings.Join(strings.Fields(m.Content), " ")
		if len(content) > tier2LineLimit {
			content = content[:tier2LineLimit]
		}
		lines = append(lines, tag+": "+content)
	}
	if len(lines) == 0 {
		return nil
	}

	prompt := compressionInstruction + "\n\n" + strings.Join(lines, "\n")
	params := inference.GenerationParams{
		MaxTokens:      600,
		Temperature:    0.2,
		TopK:           40,
		TopP:           0.95,
		RepeatPenalty:  1.1,
		MaxContextSize: 4096,
	}
	stream, _, err := c.Gen.Generate([]chat.Message{chat.NewMessage(chat.RoleUser, prompt)}, params)
	if err != nil {
		return err
	}
	var sb strings.Builder
	for tok := range stream {
		if tok.Kind == inference.KindError {
			return fmt.Errorf("summary generation failed: %s", tok.Err)
		}
		if tok.Kind == inference.KindToken {
			sb.WriteString(tok.Text)
		}
	}
	summary := strings.TrimSpace(sb.String())
	if summary == "" {
		return fmt.Errorf("summary generation produced no text")
	}

	last := conv.Messages[len(conv.Messages)-1]
	conv.Messages = []chat.Message{
		chat.NewMessage(chat.RoleSystem, "Conversation summary (earlier turns compressed):\n"+summary),
		last,
	}
	log.Info().Int("chars", totalChars(conv.Messages)).Msg("compaction_tier2")
	return nil
}

// Compact applies the two-tier policy: always tier 1; tier 2 only when tier 1
// left the conversation large, or when this is already a repeat attempt.
func (c *Compactor) Compact(conv *storage.Conversation, repeat bool) {
	c.PruneTier1(conv)
	if totalChars(conv.Messages) < tier2SkipBelowChars && !repeat {
		return
	}
	if err := c.SummarizeTier2(conv); err != nil {
		log.Warn().Err(err).Msg("compaction_tier2_failed")
	}
}
