package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"localagent/internal/chat"
)

func TestConversationLifecycle(t *testing.T) {
	first := chat.NewMessage(chat.RoleUser, "Hello, world!")
	c := NewConversation(&first)

	require.NotEmpty(t, c.ID)
	require.Equal(t, "Hello, world!", c.Title)
	require.Len(t, c.Messages, 1)
	require.False(t, c.UpdatedAt.Before(c.CreatedAt))

	before := c.UpdatedAt
	c.AddMessage(chat.NewMessage(chat.RoleAssistant, "Hi!"))
	require.True(t, c.UpdatedAt.After(before))
}

func TestProvisionalTitleTruncation(t *testing.T) {
	long := make([]rune, 100)
	for i := range long {
		long[i] = 'a'
	}
	title := provisionalTitle(string(long))
	require.Len(t, []rune(title), 53)
	require.True(t, len(title) > 3)

	require.Equal(t, "Short", provisionalTitle("Short"))
	require.Equal(t, DefaultTitle, provisionalTitle("   "))
}

func TestConversationStoreRoundTrip(t *testing.T) {
	store, err := NewConversationStore(t.TempDir())
	require.NoError(t, err)

	first := chat.NewMessage(chat.RoleUser, "persist me")
	c := NewConversation(&first)
	require.NoError(t, store.Save(c))

	loaded, err := store.Load(c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, loaded.ID)
	require.Equal(t, c.Title, loaded.Title)
	require.Len(t, loaded.Messages, 1)
	require.Equal(t, "persist me", loaded.Messages[0].Content)
}

func TestConversationStoreListOrderAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConversationStore(dir)
	require.NoError(t, err)

	a := NewConversation(nil)
	require.NoError(t, store.Save(a))
	b := NewConversation(nil)
	b.AddMessage(chat.NewMessage(chat.RoleUser, "newer"))
	require.NoError(t, store.Save(b))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("{nope"), 0o644))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, b.ID, list[0].ID)
}

func TestConversationStoreDelete(t *testing.T) {
	store, err := NewConversationStore(t.TempDir())
	require.NoError(t, err)
	c := NewConversation(nil)
	require.NoError(t, store.Save(c))
	require.NoError(t, store.Delete(c.ID))
	_, err = store.Load(c.ID)
	require.Error(t, err)
	require.Error(t, store.Delete(c.ID))
}

func TestSettingsDefaultsAndValidation(t *testing.T) {
	s := DefaultSettings()
	require.Equal(t, float32(0.7), s.Temperature)
	require.Equal(t, 16384, s.ContextSize)

	s.Temperature = 5
	s.TopP = 2
	s.ContextSize = 5000
	s.MaxTokens = 1 << 20
	s.Validate()
	require.Equal(t, float32(2), s.Temperature)
	require.Equal(t, float32(0.9), s.TopP)
	require.Equal(t, 4096, s.ContextSize)
	require.Equal(t, 65536, s.MaxTokens)
}

func TestSettingsStoreRoundTrip(t *testing.T) {
	store, err := NewSettingsStore(t.TempDir())
	require.NoError(t, err)

	// Missing file → defaults.
	require.Equal(t, DefaultSettings(), store.Load())

	s := DefaultSettings()
	s.Temperature = 0.3
	s.AutoApproveAll = true
	s.AllowedTools = []string{"web_search"}
	require.NoError(t, store.Save(s))

	loaded := store.Load()
	require.Equal(t, float32(0.3), loaded.Temperature)
	require.True(t, loaded.AutoApproveAll)
	require.Equal(t, []string{"web_search"}, loaded.AllowedTools)
}

func TestSettingsParams(t *testing.T) {
	s := DefaultSettings()
	p := s.Params()
	require.Equal(t, s.MaxTokens, p.MaxTokens)
	require.Equal(t, s.ContextSize, p.MaxContextSize)
}
