package agent

import "strings"

// garbageMarkers are fragments that only appear when decoding has gone off
// the rails (chat-template tokens leaking into text).
var garbageMarkers = []string{
	"assistantcommentary",
	"toolresult:",
	"systemassistant",
	"usersystem",
	"<|im_start|><|im_start|>",
}

// looksCorrupted applies cheap heuristics to catch degenerate model output:
// leaked template markers, absurd word lengths, or short-period repetition.
func looksCorrupted(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range garbageMarkers {
		if strings.Count(lower, marker) > 2 {
			return true
		}
	}

	// Average word length: natural text stays far below 25 chars/word.
	if len(text) >= 300 {
		words := strings.Fields(text)
		if len(words) > 0 && len(text)/len(words) > 25 {
			return true
		}
	}

	return hasRepeatingChunks(text)
}

// hasRepeatingChunks reports whether any 20-byte chunk appears 4 or more
// times within the first 100 chunks.
func hasRepeatingChunks(text string) bool {
	const chunkSize = 20
	const maxChunks = 100
	if len(text) < chunkSize*4 {
		return false
	}
	counts := map[string]int{}
	for i := 0; i+chunkSize <= len(text) && i/chunkSize < maxChunks; i += chunkSize {
		chunk := text[i : i+chunkSize]
		counts[chunk]++
		if counts[chunk] >= 4 {
			return true
		}
	}
	return false
}

// corruptedReplacement is the user-visible stand-in for garbage output.
const corruptedReplacement = "The model produced corrupted output for this reply. " +
	"This usually indicates an overloaded context or an incompatible chat template. " +
	"Try rephrasing, starting a new conversation, or reducing the context size."
