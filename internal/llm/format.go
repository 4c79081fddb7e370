// ABOUTME: Message formatter turning stored history into multimodal completion requests
// ABOUTME: Embeds attachment bytes as base64 data URLs keyed by MIME primary category

package llm

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/chatloom/chatloom/internal/store"
)

// FormatHistory transforms stored messages into the role-tagged shape the
// completion endpoint accepts. Messages without attachments pass through as
// raw text. Messages with attachments become a block list: an optional
// leading text block (only when content is non-empty) followed by one block
// per attachment, read from its staged path and embedded as a base64 data
// URL. A missing attachment file aborts the whole format call.
func FormatHistory(history []*store.Message) ([]ChatMessage, error) {
	formatted := make([]ChatMessage, 0, len(history))

	for _, msg := range history {
		if len(msg.Attachments) == 0 {
			formatted = append(formatted, ChatMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
			continue
		}

		var parts []ContentPart
		if msg.Content != "" {
			parts = append(parts, ContentPart{Type: PartText, Text: msg.Content})
		}

		for _, att := range msg.Attachments {
			part, err := attachmentPart(att)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}

		formatted = append(formatted, ChatMessage{
			Role:  string(msg.Role),
			Parts: parts,
		})
	}

	return formatted, nil
}

// attachmentPart reads a staged attachment and builds its content block
func attachmentPart(att store.Attachment) (ContentPart, error) {
	data, err := os.ReadFile(att.FilePath)
	if err != nil {
		return ContentPart{}, fmt.Errorf("reading attachment %s: %w", att.FilePath, err)
	}

	return ContentPart{
		Type: partKind(att.FileType),
		URL:  fmt.Sprintf("data:%s;base64,%s", att.FileType, base64.StdEncoding.EncodeToString(data)),
	}, nil
}

// partKind maps a MIME type's primary category to a content block kind
func partKind(mimeType string) string {
	category, _, _ := strings.Cut(mimeType, "/")
	switch category {
	case "image":
		return PartImageURL
	case "video":
		return PartVideoURL
	case "audio":
		return PartInputAudio
	default:
		return PartFileURL
	}
}
