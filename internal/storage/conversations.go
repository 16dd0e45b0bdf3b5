// Package storage persists conversations and settings as JSON files under a
// data directory: conversations/<uuid>.json plus a single settings.json.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"localagent/internal/chat"
)

// DefaultTitle is the title of a conversation before one is generated.
const DefaultTitle = "New Conversation"

// Conversation is an ordered message sequence with identity and timestamps.
type Conversation struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Messages  []chat.Message `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewConversation creates an empty conversation, optionally seeded with a
// first message that also provides the provisional title.
func NewConversation(first *chat.Message) *Conversation {
	now := time.Now().UTC()
	c := &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if first != nil {
		c.Title = provisionalTitle(first.Content)
		c.Messages = []chat.Message{*first}
	}
	return c
}

// AddMessage appends msg and bumps UpdatedAt monotonically.
func (c *Conversation) AddMessage(msg chat.Message) {
	if len(c.Messages) == 0 && c.Title == DefaultTitle {
		c.Title = provisionalTitle(msg.Content)
	}
	c.Messages = append(c.Messages, msg)
	c.touch()
}

// LastMessage returns a pointer to the final message, or nil.
func (c *Conversation) LastMessage() *chat.Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Touch bumps UpdatedAt monotonically after an in-place mutation.
func (c *Conversation) Touch() { c.touch() }

// NeedsTitle reports whether the title is still the default or the
// provisional prefix of the first user message.
func (c *Conversation) NeedsTitle() bool {
	if c.Title == DefaultTitle {
		return true
	}
	for _, m := range c.Messages {
		if m.Role == chat.RoleUser {
			return c.Title == provisionalTitle(m.Content)
		}
	}
	return false
}

func (c *Conversation) touch() {
	now := time.Now().UTC()
	if !now.After(c.UpdatedAt) {
		now = c.UpdatedAt.Add(time.Nanosecond)
	}
	c.UpdatedAt = now
}

// provisionalTitle derives a title from the first message: its first 50
// runes, with "..." appended when the message is longer.
func provisionalTitle(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if content == "" {
		return DefaultTitle
	}
	runes := []rune(content)
	if len(runes) <= 50 {
		return content
	}
	return string(runes[:50]) + "..."
}

// ConversationStore reads and writes conversations under dir.
type ConversationStore struct {
	dir string
}

// NewConversationStore ensures dir exists and returns the store.
func NewConversationStore(dir string) (*ConversationStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversations dir: %w", err)
	}
	return &ConversationStore{dir: dir}, nil
}

func (s *ConversationStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the conversation as pretty JSON.
func (s *ConversationStore) Save(c *Conversation) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := os.WriteFile(s.path(c.ID), b, 0o644); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	log.Debug().Str("id", c.ID).Msg("conversation_saved")
	return nil
}

// Load reads a conversation by id.
func (s *ConversationStore) Load(id string) (*Conversation, error) {
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	var c Conversation
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return &c, nil
}

// List returns all conversations sorted by UpdatedAt, most recent first.
// Corrupt files are skipped with a warning.
func (s *ConversationStore) List() ([]*Conversation, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []*Conversation
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			log.Warn().Str("file", e.Name()).Err(err).Msg("conversation_read_failed")
			continue
		}
		var c Conversation
		if err := json.Unmarshal(b, &c); err != nil {
			log.Warn().Str("file", e.Name()).Err(err).Msg("conversation_parse_failed")
			continue
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Delete removes a conversation file.
func (s *ConversationStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	log.Debug().Str("id", id).Msg("conversation_deleted")
	return nil
}
