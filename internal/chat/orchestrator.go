// ABOUTME: Chat turn orchestrator coordinating store, stager, completion client and broadcaster
// ABOUTME: Runs the full turn: system prompt reconciliation, staging, streaming, persistence, summary

package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/chatloom/chatloom/internal/llm"
	"github.com/chatloom/chatloom/internal/store"
	"github.com/chatloom/chatloom/internal/upload"
)

const (
	// persistTimeout bounds the detached save of the assistant message after
	// the caller may already have disconnected.
	persistTimeout = 10 * time.Second

	// summaryTimeout bounds the detached summary generation, which includes
	// a full completion call.
	summaryTimeout = 60 * time.Second
)

// summaryPrompt instructs the model to compress prior user messages into a
// short topic line. Kept deliberately example-heavy; small models follow the
// examples better than the rules.
const summaryPrompt = `
you are a bot that summarizes user messages in less than 50 characters.
just write a summary of the conversation. dont write this is a summary.
dont answer the question, just summarize the conversation.
the user wants to know what the conversation is about, not the answers.

Examples:
input: {'role': 'user', 'content': "['how to inverse a string in python?']"}
output: reverse a string in python

input: {'role': 'user', 'content': "['hi', 'how are you?', 'how do i install pandas?']"}
output: greeting, install pandas

input: {'role': 'user', 'content': "['hi']"}
output: greeting

input: {'role': 'user', 'content': "['hi', 'how are you?']"}
output: greeting

input: {'role': 'user', 'content': "['write a python snake game', 'thank you']"}
output: python snake game
`

// Streamer opens a streaming completion call
type Streamer interface {
	Stream(ctx context.Context, messages []llm.ChatMessage, settings store.Settings) (<-chan llm.Fragment, error)
}

// Upload is one file submitted with a chat turn
type Upload struct {
	Name        string
	ContentType string
	Data        io.Reader
}

// TurnRequest carries the inputs for a single chat turn
type TurnRequest struct {
	ConversationID string
	Message        string
	SystemPrompt   string
	Uploads        []Upload
}

// Orchestrator drives a chat turn end to end: it reconciles the system
// prompt, stages uploads, persists the user message, streams the completion
// to the caller while accumulating it, persists the assistant message, and
// generates a conversation summary. It holds no per-turn state and is safe
// for concurrent use across conversations.
type Orchestrator struct {
	store       store.Store
	stager      *upload.Stager
	completions Streamer
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewOrchestrator creates an orchestrator. Pass nil logger for default.
func NewOrchestrator(st store.Store, stager *upload.Stager, completions Streamer, broadcaster *Broadcaster, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:       st,
		stager:      stager,
		completions: completions,
		broadcaster: broadcaster,
		logger:      logger.With("component", "orchestrator"),
	}
}

// RunTurn executes one chat turn and returns a channel of response text
// fragments. The channel closes when the response is complete or the stream
// fails; persistence of the accumulated response continues under a detached
// context either way. Errors before any fragment is produced (unknown
// conversation, staging failure, unreachable upstream) are returned
// synchronously and nothing is streamed.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (<-chan string, error) {
	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	history, err := o.store.GetConversationHistory(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	// A changed prompt is appended, never rewritten: the history keeps every
	// version in order.
	if len(history) > 0 && latestSystemContent(history) != req.SystemPrompt {
		if _, err := o.store.AddMessage(ctx, req.ConversationID, store.RoleSystem, req.SystemPrompt, store.ContentTypeText, nil); err != nil {
			return nil, fmt.Errorf("appending system prompt: %w", err)
		}
	}

	attachments, uploadNames, err := o.stageUploads(req.Uploads)
	if err != nil {
		return nil, err
	}

	if len(history) == 0 {
		if _, err := o.store.AddMessage(ctx, req.ConversationID, store.RoleSystem, req.SystemPrompt, store.ContentTypeText, nil); err != nil {
			return nil, fmt.Errorf("seeding system prompt: %w", err)
		}
	}

	if _, err := o.store.AddMessage(ctx, req.ConversationID, store.RoleUser, req.Message, store.ContentTypeText, attachments); err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	// Re-fetch so the upstream payload is exactly what is persisted for this
	// turn; writes that land after this point are not part of it.
	history, err = o.store.GetConversationHistory(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("reloading history: %w", err)
	}

	formatted, err := llm.FormatHistory(history)
	if err != nil {
		return nil, fmt.Errorf("formatting history: %w", err)
	}

	fragments, err := o.completions.Stream(ctx, formatted, settings)
	if err != nil {
		return nil, err
	}

	o.logger.Info("turn started",
		"conversation_id", req.ConversationID,
		"history_len", len(history),
		"uploads", len(uploadNames))

	out := make(chan string, 16)
	go o.streamTurn(ctx, req.ConversationID, history, settings, uploadNames, fragments, out)
	return out, nil
}

// stageUploads writes each upload to the staging area and builds the
// attachment records. Any failure aborts the turn before persistence.
func (o *Orchestrator) stageUploads(uploads []Upload) ([]store.NewAttachment, []string, error) {
	var attachments []store.NewAttachment
	var names []string

	for _, u := range uploads {
		staged, err := o.stager.Stage(u.Name, u.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("staging %q: %w", u.Name, err)
		}

		contentType := u.ContentType
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(u.Name))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		attachments = append(attachments, store.NewAttachment{
			FileName: u.Name,
			FilePath: staged.Path,
			FileType: contentType,
			FileSize: staged.Size,
		})
		names = append(names, u.Name)
	}

	return attachments, names, nil
}

// streamTurn consumes the completion stream, tees fragments to the caller
// while accumulating them, then persists the assistant message and generates
// the summary. Runs as a goroutine; the out channel is closed when streaming
// ends, before the persistence tail completes.
func (o *Orchestrator) streamTurn(ctx context.Context, conversationID string, history []*store.Message, settings store.Settings, uploadNames []string, fragments <-chan llm.Fragment, out chan<- string) {
	var buf strings.Builder

	emit := func(text string) {
		select {
		case out <- text:
		case <-ctx.Done():
			// Caller gone; keep accumulating for persistence
		}
	}

	if len(uploadNames) > 0 {
		ack := acknowledgment(uploadNames)
		buf.WriteString(ack)
		emit(ack)
	}

	failed := false
	for f := range fragments {
		if f.Err != nil {
			failed = true
			o.logger.Error("completion stream failed",
				"conversation_id", conversationID,
				"error", f.Err)
			break
		}
		buf.WriteString(f.Text)
		emit(f.Text)
	}
	close(out)

	// The caller may have disconnected mid-stream; the accumulated response
	// is persisted under a detached context regardless.
	saveCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if _, err := o.store.AddMessage(saveCtx, conversationID, store.RoleAssistant, buf.String(), store.ContentTypeText, nil); err != nil {
		o.logger.Error("failed to persist assistant message",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	o.broadcaster.Publish(Event{Type: EventMessageAdded, ConversationID: conversationID})

	if failed {
		return
	}
	o.summarize(conversationID, history, settings)
}

// summarize generates a short topic summary from the turn's user messages
// and stores it. Failures are logged and never affect the completed turn.
func (o *Orchestrator) summarize(conversationID string, history []*store.Message, settings store.Settings) {
	ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
	defer cancel()

	var topics []string
	for _, m := range history {
		if m.Role == store.RoleUser {
			topics = append(topics, m.Content)
		}
	}

	messages := []llm.ChatMessage{
		{Role: "system", Content: summaryPrompt},
		{Role: "user", Content: renderTopicList(topics)},
	}

	fragments, err := o.completions.Stream(ctx, messages, settings)
	if err != nil {
		o.logger.Error("failed to generate summary",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	var b strings.Builder
	for f := range fragments {
		if f.Err != nil {
			o.logger.Error("summary stream failed",
				"conversation_id", conversationID,
				"error", f.Err)
			return
		}
		b.WriteString(f.Text)
	}

	summary := strings.TrimSpace(b.String())
	if err := o.store.UpdateConversationSummary(ctx, conversationID, summary); err != nil {
		o.logger.Error("failed to store summary",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	o.broadcaster.Publish(Event{
		Type:           EventSummaryUpdated,
		ConversationID: conversationID,
		Summary:        summary,
	})

	o.logger.Info("summary updated", "conversation_id", conversationID, "summary", summary)
}

// latestSystemContent returns the content of the most recent system message,
// or "" when the history has none.
func latestSystemContent(history []*store.Message) string {
	content := ""
	for _, m := range history {
		if m.Role == store.RoleSystem {
			content = m.Content
		}
	}
	return content
}

// acknowledgment builds the fixed line confirming received files, e.g.
// "I received your message and the following files: 'a.png', 'b.pdf'\n"
func acknowledgment(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return "I received your message and the following files: " + strings.Join(quoted, ", ") + "\n"
}

// renderTopicList renders prior user messages as a single quoted list, the
// shape the summary prompt's examples use.
func renderTopicList(topics []string) string {
	quoted := make([]string, len(topics))
	for i, t := range topics {
		quoted[i] = "'" + strings.ReplaceAll(t, "'", `\'`) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
