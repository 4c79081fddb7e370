// ABOUTME: Store interface and data types for chatloom persistence
// ABOUTME: Defines Conversation, Message, Attachment, Settings and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType categorizes the payload of a message
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeAudio ContentType = "audio"
	ContentTypeVideo ContentType = "video"
	ContentTypeFile  ContentType = "file"
)

// Conversation represents a chat conversation
type Conversation struct {
	ID          string
	CreatedAt   time.Time
	LastUpdated time.Time
	Summary     *string // nil until the first summary is generated
}

// Message represents a single message within a conversation.
// Messages are immutable once created; they are removed only when their
// conversation is deleted.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	ContentType    ContentType
	Content        string
	CreatedAt      time.Time
	Attachments    []Attachment
}

// Attachment represents a staged file referenced by a message.
// The file bytes live on disk at FilePath; the store only holds metadata.
type Attachment struct {
	ID        string
	MessageID string
	FileName  string
	FilePath  string
	FileType  string // MIME type
	FileSize  int64
	CreatedAt time.Time
}

// NewAttachment is the input form for attaching a staged file to a message
type NewAttachment struct {
	FileName string
	FilePath string
	FileType string
	FileSize int64
}

// ConversationOverview is a conversation with read-time aggregates
type ConversationOverview struct {
	Conversation
	MessageCount  int
	LastMessageAt *time.Time // nil when the conversation has no messages
}

// Settings holds the model-connection settings singleton
type Settings struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
	Host        string  `json:"host"`
	ModelName   string  `json:"model_name"`
	APIKey      string  `json:"api_key"`
}

// DefaultSettings returns the settings surfaced to new installs
func DefaultSettings() Settings {
	return Settings{
		Temperature: 1.0,
		MaxTokens:   4096,
		TopP:        0.95,
		Host:        "http://localhost:8000/v1",
		ModelName:   "meta-llama/Llama-3.2-1B-Instruct",
		APIKey:      "",
	}
}

// Store defines the interface for conversation persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context) (string, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]*ConversationOverview, error)
	DeleteConversation(ctx context.Context, id string) error
	UpdateConversationSummary(ctx context.Context, id, summary string) error

	// Messages
	AddMessage(ctx context.Context, conversationID string, role Role, content string, contentType ContentType, attachments []NewAttachment) (string, error)
	GetConversationHistory(ctx context.Context, conversationID string) ([]*Message, error)

	// Settings singleton
	SaveSettings(ctx context.Context, settings Settings) error
	GetSettings(ctx context.Context) (Settings, error)

	// Close releases any resources held by the store
	Close() error
}
