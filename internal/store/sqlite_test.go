// ABOUTME: Tests for the SQLite conversation store
// ABOUTME: Covers conversation CRUD, atomic message append, history order, settings defaults

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestStore_CreateConversation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	assert.Nil(t, conv.Summary)
	assert.False(t, conv.CreatedAt.IsZero())
}

func TestStore_GetConversation_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetConversation(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AddMessage(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	msgID, err := s.AddMessage(ctx, id, RoleUser, "hello", ContentTypeText, nil)
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	history, err := s.GetConversationHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, ContentTypeText, history[0].ContentType)
	assert.Empty(t, history[0].Attachments)
}

func TestStore_AddMessage_UnknownConversation(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.AddMessage(context.Background(), "nonexistent", RoleUser, "hello", ContentTypeText, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AddMessage_BumpsLastUpdated(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	before, err := s.GetConversation(ctx, id)
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, id, RoleUser, "hello", ContentTypeText, nil)
	require.NoError(t, err)

	after, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.True(t, after.LastUpdated.After(before.LastUpdated),
		"last_updated should strictly increase on append")
}

func TestStore_AddMessage_WithAttachments(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	attachments := []NewAttachment{
		{FileName: "photo.png", FilePath: "/tmp/staged/photo_1.png", FileType: "image/png", FileSize: 1234},
		{FileName: "notes.txt", FilePath: "/tmp/staged/notes_1.txt", FileType: "text/plain", FileSize: 42},
	}

	_, err = s.AddMessage(ctx, id, RoleUser, "see attached", ContentTypeText, attachments)
	require.NoError(t, err)

	history, err := s.GetConversationHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Len(t, history[0].Attachments, 2)

	att := history[0].Attachments[0]
	assert.Equal(t, "photo.png", att.FileName)
	assert.Equal(t, "/tmp/staged/photo_1.png", att.FilePath)
	assert.Equal(t, "image/png", att.FileType)
	assert.Equal(t, int64(1234), att.FileSize)
}

func TestStore_GetConversationHistory_Order(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.AddMessage(ctx, id, RoleUser, fmt.Sprintf("message %d", i), ContentTypeText, nil)
		require.NoError(t, err)
	}

	history, err := s.GetConversationHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 5)

	for i, msg := range history {
		assert.Equal(t, fmt.Sprintf("message %d", i), msg.Content)
		if i > 0 {
			assert.False(t, msg.CreatedAt.Before(history[i-1].CreatedAt),
				"created_at must be non-decreasing")
		}
	}

	// Repeated reads without intervening writes are idempotent
	again, err := s.GetConversationHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, again, 5)
	for i := range again {
		assert.Equal(t, history[i].ID, again[i].ID)
	}
}

func TestStore_GetConversationHistory_UnknownIsEmpty(t *testing.T) {
	s := setupTestStore(t)

	history, err := s.GetConversationHistory(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_DeleteConversation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, id, RoleUser, "hello", ContentTypeText, []NewAttachment{
		{FileName: "a.png", FilePath: "/tmp/a.png", FileType: "image/png", FileSize: 1},
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, id))

	_, err = s.GetConversation(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	// History of a deleted conversation is an empty sequence, not an error
	history, err := s.GetConversationHistory(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_DeleteConversation_NotFound(t *testing.T) {
	s := setupTestStore(t)

	err := s.DeleteConversation(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListConversations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	empty, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	busy, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, busy, RoleUser, "one", ContentTypeText, nil)
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, busy, RoleAssistant, "two", ContentTypeText, nil)
	require.NoError(t, err)

	overviews, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, overviews, 2)

	byID := make(map[string]*ConversationOverview)
	for _, o := range overviews {
		byID[o.ID] = o
	}

	assert.Equal(t, 0, byID[empty].MessageCount)
	assert.Nil(t, byID[empty].LastMessageAt)

	assert.Equal(t, 2, byID[busy].MessageCount)
	require.NotNil(t, byID[busy].LastMessageAt)
}

func TestStore_UpdateConversationSummary(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	require.NoError(t, s.UpdateConversationSummary(ctx, id, "reverse a string in python"))

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, conv.Summary)
	assert.Equal(t, "reverse a string in python", *conv.Summary)

	// Unknown conversation is a no-op success
	assert.NoError(t, s.UpdateConversationSummary(ctx, "nonexistent", "whatever"))
}

func TestStore_Settings_Defaults(t *testing.T) {
	s := setupTestStore(t)

	settings, err := s.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, settings.Temperature)
	assert.Equal(t, 4096, settings.MaxTokens)
	assert.Equal(t, 0.95, settings.TopP)
	assert.Equal(t, "http://localhost:8000/v1", settings.Host)
	assert.Equal(t, "meta-llama/Llama-3.2-1B-Instruct", settings.ModelName)
	assert.Empty(t, settings.APIKey)
}

func TestStore_Settings_SaveAndReload(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	saved := Settings{
		Temperature: 0.2,
		MaxTokens:   1024,
		TopP:        0.9,
		Host:        "http://example.com/v1",
		ModelName:   "test-model",
		APIKey:      "sk-test",
	}
	require.NoError(t, s.SaveSettings(ctx, saved))

	loaded, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)

	// Saving again overwrites in place; there is only ever one row
	saved.ModelName = "other-model"
	require.NoError(t, s.SaveSettings(ctx, saved))

	loaded, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "other-model", loaded.ModelName)
}

func TestStore_Settings_PartialSaveFallsBackToDefaults(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// A save that never set the sampling knobs must not serve zeros back
	require.NoError(t, s.SaveSettings(ctx, Settings{
		MaxTokens: 2048,
		Host:      "http://example.com/v1",
		ModelName: "test-model",
	}))

	loaded, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, loaded.Temperature)
	assert.Equal(t, 0.95, loaded.TopP)
	assert.Equal(t, 2048, loaded.MaxTokens)
	assert.Equal(t, "http://example.com/v1", loaded.Host)
	assert.Equal(t, "test-model", loaded.ModelName)
}

func TestFormatTime_LexicographicOrder(t *testing.T) {
	// Fractions where one is a prefix of the other (.5 vs .51) are the
	// trap for variable-width encodings; the stored form must stay
	// fixed-width so string comparison agrees with chronology.
	earlier := time.Date(2026, 1, 2, 3, 4, 5, 500_000_000, time.UTC)
	later := time.Date(2026, 1, 2, 3, 4, 5, 510_000_000, time.UTC)

	a, b := formatTime(earlier), formatTime(later)
	assert.Len(t, a, len(b))
	assert.Less(t, a, b)

	// Round-trip keeps the instant
	parsed, err := parseTime(a)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(earlier))
}
