// ABOUTME: Wire types for OpenAI-compatible chat completion requests
// ABOUTME: ChatMessage marshals content as plain text or a multimodal block list

package llm

import (
	"encoding/json"
	"errors"
)

// ErrUpstream marks completion endpoint failures: unreachable host, non-2xx
// responses and malformed streams. Callers test with errors.Is.
var ErrUpstream = errors.New("upstream completion error")

// Content part kinds understood by OpenAI-compatible multimodal endpoints
const (
	PartText       = "text"
	PartImageURL   = "image_url"
	PartVideoURL   = "video_url"
	PartInputAudio = "input_audio"
	PartFileURL    = "file_url"
)

// ContentPart is one block of a multimodal message. Text parts carry Text;
// every other kind carries a self-describing data URL.
type ContentPart struct {
	Type string
	Text string
	URL  string
}

// MarshalJSON emits the part in the endpoint's shape: text parts as
// {"type":"text","text":...}, reference parts as {"type":K,K:{"url":...}}.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	if p.Type == PartText {
		return json.Marshal(map[string]string{
			"type": PartText,
			"text": p.Text,
		})
	}
	return json.Marshal(map[string]any{
		"type": p.Type,
		p.Type: map[string]string{"url": p.URL},
	})
}

// ChatMessage is one role-tagged entry of a completion request.
// Parts takes precedence over Content when non-empty.
type ChatMessage struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// MarshalJSON emits content as a raw string for text-only messages and as a
// block list when attachments are present.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	var content any = m.Content
	if len(m.Parts) > 0 {
		content = m.Parts
	}
	return json.Marshal(map[string]any{
		"role":    m.Role,
		"content": content,
	})
}
