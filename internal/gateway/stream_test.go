// ABOUTME: Tests for the streaming endpoints: POST /chat and GET /events
// ABOUTME: Covers fragment streaming, persistence after stream end and SSE event framing

package gateway

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatloom/chatloom/internal/chat"
	"github.com/chatloom/chatloom/internal/llm"
)

func textFragments(texts ...string) []llm.Fragment {
	out := make([]llm.Fragment, len(texts))
	for i, t := range texts {
		out[i] = llm.Fragment{Text: t}
	}
	return out
}

// chatForm builds a multipart /chat request body.
func chatForm(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandleChat_StreamsResponse(t *testing.T) {
	streamer := &stubStreamer{scripts: [][]llm.Fragment{
		textFragments("Use ", "s[::-1]"),
		textFragments("reverse a string in python"),
	}}
	g := newTestGateway(t, streamer)
	server := httptest.NewServer(g.routes())
	defer server.Close()

	id := createConversation(t, server)

	body, contentType := chatForm(t, map[string]string{
		"message":         "how to inverse a string in python?",
		"system_prompt":   "You are a helpful assistant.",
		"conversation_id": id,
	}, nil)

	resp, err := http.Post(server.URL+"/chat", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	streamed, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Use s[::-1]", string(streamed))

	// The assistant message lands after the stream closes
	require.Eventually(t, func() bool {
		history, err := g.store.GetConversationHistory(context.Background(), id)
		return err == nil && len(history) == 3
	}, 2*time.Second, 20*time.Millisecond)

	history, err := g.store.GetConversationHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Use s[::-1]", history[2].Content)
}

func TestHandleChat_WithUpload(t *testing.T) {
	streamer := &stubStreamer{scripts: [][]llm.Fragment{
		textFragments("A text file."),
		textFragments("file question"),
	}}
	g := newTestGateway(t, streamer)
	server := httptest.NewServer(g.routes())
	defer server.Close()

	id := createConversation(t, server)

	body, contentType := chatForm(t, map[string]string{
		"message":         "what is in this file?",
		"system_prompt":   "You are a helpful assistant.",
		"conversation_id": id,
	}, map[string][]byte{"notes.txt": []byte("some notes")})

	resp, err := http.Post(server.URL+"/chat", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	streamed, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(streamed),
		"I received your message and the following files: 'notes.txt'\n"))

	require.Eventually(t, func() bool {
		history, err := g.store.GetConversationHistory(context.Background(), id)
		return err == nil && len(history) == 3
	}, 2*time.Second, 20*time.Millisecond)

	history, err := g.store.GetConversationHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history[1].Attachments, 1)
	assert.Equal(t, "notes.txt", history[1].Attachments[0].FileName)
	assert.Equal(t, int64(len("some notes")), history[1].Attachments[0].FileSize)
}

func TestHandleChat_UnknownConversation(t *testing.T) {
	g := newTestGateway(t, nil)
	server := httptest.NewServer(g.routes())
	defer server.Close()

	body, contentType := chatForm(t, map[string]string{
		"message":         "hi",
		"system_prompt":   "You are a helpful assistant.",
		"conversation_id": "nope",
	}, nil)

	resp, err := http.Post(server.URL+"/chat", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleChat_MissingConversationID(t *testing.T) {
	g := newTestGateway(t, nil)
	server := httptest.NewServer(g.routes())
	defer server.Close()

	body, contentType := chatForm(t, map[string]string{"message": "hi"}, nil)

	resp, err := http.Post(server.URL+"/chat", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleEvents(t *testing.T) {
	g := newTestGateway(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		g.handleEvents(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return g.broadcaster.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	g.broadcaster.Publish(chat.Event{Type: chat.EventConversationCreated, ConversationID: "conv-1"})
	g.broadcaster.Publish(chat.Event{Type: chat.EventSummaryUpdated, ConversationID: "conv-1", Summary: "greeting"})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: conversation_created\n")
	assert.Contains(t, body, `"conversation_id":"conv-1"`)
	assert.Contains(t, body, "event: summary_updated\n")
	assert.Contains(t, body, `"summary":"greeting"`)
}
