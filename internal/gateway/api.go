// ABOUTME: JSON API handlers for conversations, messages, settings and system prompts
// ABOUTME: Response shapes follow the client contract: flat objects with snake_case keys

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chatloom/chatloom/internal/chat"
	"github.com/chatloom/chatloom/internal/store"
)

// ConversationResponse is one entry in the GET /conversations listing.
type ConversationResponse struct {
	ConversationID string  `json:"conversation_id"`
	CreatedAt      string  `json:"created_at"`
	LastUpdated    string  `json:"last_updated"`
	Summary        *string `json:"summary"`
	MessageCount   int     `json:"message_count"`
	LastMessageAt  *string `json:"last_message_at"`
}

// AttachmentResponse is an attachment record within a message.
type AttachmentResponse struct {
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

// MessageResponse is one message in GET /conversations/{id}.
type MessageResponse struct {
	MessageID   string               `json:"message_id"`
	Role        string               `json:"role"`
	Content     string               `json:"content"`
	ContentType string               `json:"content_type"`
	CreatedAt   string               `json:"created_at"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
}

// AddMessageRequest is the JSON body for POST /conversations/{id}/messages.
type AddMessageRequest struct {
	Role        string               `json:"role"`
	Content     string               `json:"content"`
	ContentType string               `json:"content_type,omitempty"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
}

// sendJSON writes a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

// handleCreateConversation handles POST /create_conversation.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, err := g.store.CreateConversation(r.Context())
	if err != nil {
		g.logger.Error("failed to create conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.broadcaster.Publish(chat.Event{Type: chat.EventConversationCreated, ConversationID: id})
	g.sendJSON(w, http.StatusOK, map[string]string{"conversation_id": id})
}

// handleListConversations handles GET /conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	overviews, err := g.store.ListConversations(r.Context())
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]ConversationResponse, len(overviews))
	for i, o := range overviews {
		var lastMessageAt *string
		if o.LastMessageAt != nil {
			s := o.LastMessageAt.Format(time.RFC3339Nano)
			lastMessageAt = &s
		}
		response[i] = ConversationResponse{
			ConversationID: o.ID,
			CreatedAt:      o.CreatedAt.Format(time.RFC3339Nano),
			LastUpdated:    o.LastUpdated.Format(time.RFC3339Nano),
			Summary:        o.Summary,
			MessageCount:   o.MessageCount,
			LastMessageAt:  lastMessageAt,
		}
	}

	g.sendJSON(w, http.StatusOK, map[string]any{"conversations": response})
}

// handleConversationRoutes dispatches the /conversations/{id} subtree:
// GET and DELETE on the conversation itself, POST on /messages, and
// GET on /export.
func (g *Gateway) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/conversations/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			g.handleGetConversation(w, r, id)
		case http.MethodDelete:
			g.handleDeleteConversation(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "messages":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleAddMessage(w, r, id)
	case "export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleExport(w, r, id)
	default:
		g.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

// handleGetConversation handles GET /conversations/{id}.
// An empty history reads as an unknown conversation.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request, id string) {
	history, err := g.store.GetConversationHistory(r.Context(), id)
	if err != nil {
		g.logger.Error("failed to get history", "error", err, "conversation_id", id)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(history) == 0 {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}

	g.sendJSON(w, http.StatusOK, map[string]any{"messages": messagesToResponse(history)})
}

// handleDeleteConversation handles DELETE /conversations/{id}.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request, id string) {
	err := g.store.DeleteConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to delete conversation", "error", err, "conversation_id", id)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.broadcaster.Publish(chat.Event{Type: chat.EventConversationDeleted, ConversationID: id})
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleAddMessage handles POST /conversations/{id}/messages.
func (g *Gateway) handleAddMessage(w http.ResponseWriter, r *http.Request, id string) {
	var req AddMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Role == "" {
		g.sendJSONError(w, http.StatusBadRequest, "role is required")
		return
	}

	contentType := store.ContentType(req.ContentType)
	if contentType == "" {
		contentType = store.ContentTypeText
	}

	var attachments []store.NewAttachment
	for _, a := range req.Attachments {
		attachments = append(attachments, store.NewAttachment{
			FileName: a.FileName,
			FilePath: a.FilePath,
			FileType: a.FileType,
			FileSize: a.FileSize,
		})
	}

	messageID, err := g.store.AddMessage(r.Context(), id, store.Role(req.Role), req.Content, contentType, attachments)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to add message", "error", err, "conversation_id", id)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.broadcaster.Publish(chat.Event{Type: chat.EventMessageAdded, ConversationID: id})
	g.sendJSON(w, http.StatusOK, map[string]string{"message_id": messageID})
}

// handleSaveSettings handles POST /save_settings.
func (g *Gateway) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Fields the payload omits keep their documented defaults.
	settings := store.DefaultSettings()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := g.store.SaveSettings(r.Context(), settings); err != nil {
		g.logger.Error("failed to save settings", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleGetSettings handles GET /settings.
func (g *Gateway) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	settings, err := g.store.GetSettings(r.Context())
	if err != nil {
		g.logger.Error("failed to get settings", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, settings)
}

// handleDefaultSettings handles GET /settings/defaults.
func (g *Gateway) handleDefaultSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.sendJSON(w, http.StatusOK, store.DefaultSettings())
}

// handleGetSystemPrompt handles GET /get_system_prompt?conversation_id=X.
// Returns the most recent system message of the conversation, or the default
// prompt when there is none.
func (g *Gateway) handleGetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	prompt := defaultSystemPrompt
	if id := r.URL.Query().Get("conversation_id"); id != "" {
		history, err := g.store.GetConversationHistory(r.Context(), id)
		if err != nil {
			g.logger.Error("failed to get history", "error", err, "conversation_id", id)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		for _, m := range history {
			if m.Role == store.RoleSystem {
				prompt = m.Content
			}
		}
	}

	g.sendJSON(w, http.StatusOK, map[string]string{"system_prompt": prompt})
}

// messagesToResponse converts stored messages to their wire shape.
func messagesToResponse(history []*store.Message) []MessageResponse {
	response := make([]MessageResponse, len(history))
	for i, m := range history {
		var attachments []AttachmentResponse
		for _, a := range m.Attachments {
			attachments = append(attachments, AttachmentResponse{
				FileName: a.FileName,
				FilePath: a.FilePath,
				FileType: a.FileType,
				FileSize: a.FileSize,
			})
		}
		response[i] = MessageResponse{
			MessageID:   m.ID,
			Role:        string(m.Role),
			Content:     m.Content,
			ContentType: string(m.ContentType),
			CreatedAt:   m.CreatedAt.Format(time.RFC3339Nano),
			Attachments: attachments,
		}
	}
	return response
}
