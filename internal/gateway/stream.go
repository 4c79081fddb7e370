// ABOUTME: Streaming handlers: POST /chat multipart turns and the GET /events feed
// ABOUTME: Chat streams raw response fragments; events use standard SSE framing

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/chatloom/chatloom/internal/chat"
	"github.com/chatloom/chatloom/internal/llm"
	"github.com/chatloom/chatloom/internal/store"
)

// maxChatFormMemory bounds how much of a multipart chat request is held in
// memory; larger file parts spill to disk before staging.
const maxChatFormMemory = 32 << 20

// handleChat handles POST /chat. The multipart form carries message,
// system_prompt, conversation_id and zero or more files. The response body
// is the raw fragment stream; the connection closing is the turn boundary.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxChatFormMemory); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	conversationID := r.FormValue("conversation_id")
	if conversationID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	req := chat.TurnRequest{
		ConversationID: conversationID,
		Message:        r.FormValue("message"),
		SystemPrompt:   r.FormValue("system_prompt"),
	}

	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			file, err := header.Open()
			if err != nil {
				g.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("reading upload %q", header.Filename))
				return
			}
			defer file.Close()

			req.Uploads = append(req.Uploads, chat.Upload{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        file,
			})
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	out, err := g.orchestrator.RunTurn(r.Context(), req)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if errors.Is(err, llm.ErrUpstream) {
		g.sendJSONError(w, http.StatusBadGateway, "completion endpoint unavailable")
		return
	}
	if err != nil {
		g.logger.Error("failed to start turn", "error", err, "conversation_id", conversationID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	for text := range out {
		if _, err := fmt.Fprint(w, text); err != nil {
			// Client gone; the orchestrator finishes persistence on its own
			return
		}
		flusher.Flush()
	}
}

// handleEvents handles GET /events, an SSE feed of conversation lifecycle
// events. The subscription lives for the duration of the request.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	events, subID := g.broadcaster.Subscribe(r.Context())
	defer g.broadcaster.Unsubscribe(subID)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			g.writeSSEEvent(w, string(ev.Type), ev)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one SSE event with a JSON payload.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
