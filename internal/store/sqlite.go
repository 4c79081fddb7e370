// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message/attachment persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			created_at      TEXT NOT NULL,
			last_updated    TEXT NOT NULL,
			summary         TEXT
		);

		CREATE TABLE IF NOT EXISTS messages (
			message_id      TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content_type    TEXT NOT NULL DEFAULT 'text',
			content         TEXT NOT NULL,
			created_at      TEXT NOT NULL,

			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id),
			CHECK (role IN ('system', 'user', 'assistant')),
			CHECK (content_type IN ('text', 'image', 'audio', 'video', 'file'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS attachments (
			attachment_id TEXT PRIMARY KEY,
			message_id    TEXT NOT NULL,
			file_name     TEXT NOT NULL,
			file_path     TEXT NOT NULL,
			file_type     TEXT NOT NULL,
			file_size     INTEGER NOT NULL,
			created_at    TEXT NOT NULL,

			FOREIGN KEY (message_id) REFERENCES messages(message_id)
		);

		CREATE INDEX IF NOT EXISTS idx_attachments_message
			ON attachments(message_id);

		CREATE TABLE IF NOT EXISTS settings (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			temperature REAL NOT NULL,
			max_tokens  INTEGER NOT NULL,
			top_p       REAL NOT NULL,
			host        TEXT NOT NULL,
			model_name  TEXT NOT NULL,
			api_key     TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout is a fixed-width RFC 3339 layout with nanosecond precision.
// Unlike RFC3339Nano it never trims trailing zeros, so lexicographic order
// of stored timestamps matches chronological order and ORDER BY on the
// column is sound.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime serializes a timestamp for storage
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime deserializes a stored timestamp
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// CreateConversation allocates a new conversation with a generated ID
func (s *SQLiteStore) CreateConversation(ctx context.Context) (string, error) {
	id := uuid.New().String()
	now := formatTime(time.Now())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, created_at, last_updated) VALUES (?, ?, ?)`,
		id, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("conversation created", "conversation_id", id)
	return id, nil
}

// GetConversation retrieves a conversation by ID
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, created_at, last_updated, summary
		 FROM conversations WHERE conversation_id = ?`,
		id,
	)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*Conversation, error) {
	var conv Conversation
	var createdAt, lastUpdated string
	var summary sql.NullString

	if err := row.Scan(&conv.ID, &createdAt, &lastUpdated, &summary); err != nil {
		return nil, err
	}

	var err error
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if conv.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, err
	}
	if summary.Valid {
		conv.Summary = &summary.String
	}
	return &conv, nil
}

// AddMessage appends a message and its attachment records to a conversation.
// The message insert, attachment inserts and last_updated bump are one
// transaction; partial attachment writes are never observable.
// Returns ErrNotFound when the conversation does not exist.
func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID string, role Role, content string, contentType ContentType, attachments []NewAttachment) (string, error) {
	if contentType == "" {
		contentType = ContentTypeText
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE conversation_id = ?`,
		conversationID,
	).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("checking conversation: %w", err)
	}
	if exists == 0 {
		return "", ErrNotFound
	}

	messageID := uuid.New().String()
	now := formatTime(time.Now())

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (message_id, conversation_id, role, content_type, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		messageID, conversationID, string(role), string(contentType), content, now,
	)
	if err != nil {
		return "", fmt.Errorf("inserting message: %w", err)
	}

	for _, att := range attachments {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO attachments (attachment_id, message_id, file_name, file_path, file_type, file_size, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), messageID, att.FileName, att.FilePath, att.FileType, att.FileSize, now,
		)
		if err != nil {
			return "", fmt.Errorf("inserting attachment: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET last_updated = ? WHERE conversation_id = ?`,
		now, conversationID,
	)
	if err != nil {
		return "", fmt.Errorf("updating last_updated: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("message added",
		"conversation_id", conversationID,
		"message_id", messageID,
		"role", role,
		"attachments", len(attachments),
	)
	return messageID, nil
}

// GetConversationHistory returns all messages of a conversation in ascending
// created_at order (ties broken by insertion order), each with its nested
// attachment list. An unknown conversation yields an empty slice, not an
// error; callers use this as an existence probe.
func (s *SQLiteStore) GetConversationHistory(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.message_id, m.conversation_id, m.role, m.content_type, m.content, m.created_at,
		        a.attachment_id, a.file_name, a.file_path, a.file_type, a.file_size, a.created_at
		 FROM messages m
		 LEFT JOIN attachments a ON m.message_id = a.message_id
		 WHERE m.conversation_id = ?
		 ORDER BY m.created_at ASC, m.rowid ASC, a.rowid ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	byID := make(map[string]*Message)

	for rows.Next() {
		var (
			msgID, convID, role, contentType, content, createdAt string
			attID, attName, attPath, attType                     sql.NullString
			attSize                                              sql.NullInt64
			attCreatedAt                                         sql.NullString
		)
		if err := rows.Scan(&msgID, &convID, &role, &contentType, &content, &createdAt,
			&attID, &attName, &attPath, &attType, &attSize, &attCreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}

		msg, ok := byID[msgID]
		if !ok {
			ts, err := parseTime(createdAt)
			if err != nil {
				return nil, err
			}
			msg = &Message{
				ID:             msgID,
				ConversationID: convID,
				Role:           Role(role),
				ContentType:    ContentType(contentType),
				Content:        content,
				CreatedAt:      ts,
				Attachments:    []Attachment{},
			}
			byID[msgID] = msg
			messages = append(messages, msg)
		}

		if attID.Valid {
			ts, err := parseTime(attCreatedAt.String)
			if err != nil {
				return nil, err
			}
			msg.Attachments = append(msg.Attachments, Attachment{
				ID:        attID.String,
				MessageID: msgID,
				FileName:  attName.String,
				FilePath:  attPath.String,
				FileType:  attType.String,
				FileSize:  attSize.Int64,
				CreatedAt: ts,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return messages, nil
}

// DeleteConversation removes a conversation with its messages and attachment
// records in one transaction, in dependency order. Returns ErrNotFound when
// the conversation does not exist.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM attachments WHERE message_id IN (
			SELECT message_id FROM messages WHERE conversation_id = ?
		)`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting attachments: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("conversation deleted", "conversation_id", id)
	return nil
}

// ListConversations returns all conversations with read-time aggregates,
// oldest first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*ConversationOverview, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.conversation_id, c.created_at, c.last_updated, c.summary,
		        COUNT(m.message_id), MAX(m.created_at)
		 FROM conversations c
		 LEFT JOIN messages m ON c.conversation_id = m.conversation_id
		 GROUP BY c.conversation_id
		 ORDER BY c.created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	overviews := []*ConversationOverview{}
	for rows.Next() {
		var o ConversationOverview
		var createdAt, lastUpdated string
		var summary, lastMessageAt sql.NullString

		if err := rows.Scan(&o.ID, &createdAt, &lastUpdated, &summary, &o.MessageCount, &lastMessageAt); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		if o.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if o.LastUpdated, err = parseTime(lastUpdated); err != nil {
			return nil, err
		}
		if summary.Valid {
			o.Summary = &summary.String
		}
		if lastMessageAt.Valid {
			ts, err := parseTime(lastMessageAt.String)
			if err != nil {
				return nil, err
			}
			o.LastMessageAt = &ts
		}
		overviews = append(overviews, &o)
	}

	return overviews, rows.Err()
}

// UpdateConversationSummary overwrites the summary field.
// Unknown conversation IDs are a no-op success.
func (s *SQLiteStore) UpdateConversationSummary(ctx context.Context, id, summary string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = ? WHERE conversation_id = ?`,
		summary, id,
	)
	if err != nil {
		return fmt.Errorf("updating summary: %w", err)
	}

	s.logger.Debug("summary updated", "conversation_id", id, "summary_len", len(summary))
	return nil
}

// SaveSettings upserts the settings singleton row
func (s *SQLiteStore) SaveSettings(ctx context.Context, settings Settings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (id, temperature, max_tokens, top_p, host, model_name, api_key, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			temperature = excluded.temperature,
			max_tokens  = excluded.max_tokens,
			top_p       = excluded.top_p,
			host        = excluded.host,
			model_name  = excluded.model_name,
			api_key     = excluded.api_key,
			updated_at  = excluded.updated_at`,
		settings.Temperature, settings.MaxTokens, settings.TopP,
		settings.Host, settings.ModelName, settings.APIKey,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	s.logger.Debug("settings saved", "host", settings.Host, "model", settings.ModelName)
	return nil
}

// GetSettings reads the settings singleton, falling back to documented
// defaults when no row has been saved or individual fields are unset.
func (s *SQLiteStore) GetSettings(ctx context.Context) (Settings, error) {
	var settings Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT temperature, max_tokens, top_p, host, model_name, api_key FROM settings WHERE id = 1`,
	).Scan(&settings.Temperature, &settings.MaxTokens, &settings.TopP,
		&settings.Host, &settings.ModelName, &settings.APIKey)
	if err == sql.ErrNoRows {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("querying settings: %w", err)
	}

	defaults := DefaultSettings()
	if settings.Host == "" {
		settings.Host = defaults.Host
	}
	if settings.ModelName == "" {
		settings.ModelName = defaults.ModelName
	}
	if settings.MaxTokens == 0 {
		settings.MaxTokens = defaults.MaxTokens
	}
	if settings.Temperature == 0 {
		settings.Temperature = defaults.Temperature
	}
	if settings.TopP == 0 {
		settings.TopP = defaults.TopP
	}
	return settings, nil
}
