package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLooksCorruptedMarkers(t *testing.T) {
	text := strings.Repeat("assistantcommentary blah ", 3)
	require.True(t, looksCorrupted(text))
}

func TestLooksCorruptedLongWords(t *testing.T) {
	// >= 300 chars with no spaces at all.
	require.True(t, looksCorrupted(strings.Repeat("abcdefghij", 40)))
}

func TestLooksCorruptedRepeatingChunks(t *testing.T) {
	require.True(t, looksCorrupted(strings.Repeat("exactly20bytechunk!!", 6)))
}

func TestCleanTextNotCorrupted(t *testing.T) {
	clean := "Here is a normal reply. It lists three files: a, b, and c. " +
		"Each of them lives in /tmp, and none of them is a directory. " +
		"Let me know if you want their contents."
	require.False(t, looksCorrupted(clean))
}

func TestShortTextNotCorrupted(t *testing.T) {
	require.False(t, looksCorrupted("ok"))
}
