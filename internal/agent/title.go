package agent

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"localagent/internal/chat"
	"localagent/internal/inference"
)

const titleMaxRunes = 60

var thinkingTagRe = regexp.MustCompile(`(?s)<think(?:ing)?>.*?</think(?:ing)?>`)

// GenerateTitle runs a small secondary generation asking for a short
// conversation title, then sanitizes the output.
func GenerateTitle(gen Generator, firstUser, firstAssistant string) (string, error) {
	params := inference.GenerationParams{
		MaxTokens:      60,
		Temperature:    0.3,
		TopK:           40,
		TopP:           0.95,
		RepeatPenalty:  1.1,
		MaxContextSize: 2048,
	}
	prompt := buildTitlePrompt(firstUser, firstAssistant)
	stream, _, err := gen.Generate([]chat.Message{chat.NewMessage(chat.RoleUser, prompt)}, params)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for tok := range stream {
		if tok.Kind == inference.KindError {
			return "", fmt.Errorf("title generation failed: %s", tok.Err)
		}
		if tok.Kind == inference.KindToken {
			sb.WriteString(tok.Text)
		}
	}

	title := sanitizeTitle(sb.String())
	if title == "" {
		return "", fmt.Errorf("title generation produced no usable text")
	}
	return title, nil
}

// sanitizeTitle strips residual thinking tags, code fences, and quoting, and
// truncates to the display limit.
func sanitizeTitle(raw string) string {
	s := thinkingTagRe.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " \"'`“”‘’")
	s = strings.TrimPrefix(s, "Title:")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".!?,")
	if utf8.RuneCountInString(s) > titleMaxRunes {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:titleMaxRunes]))
	}
	return s
}
