// ABOUTME: HTML transcript export for a conversation
// ABOUTME: Assistant markdown is rendered with goldmark; other roles are shown verbatim

package gateway

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/chatloom/chatloom/internal/store"
)

// markdown renders assistant responses for the transcript.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// transcriptMessage is one rendered message in the exported page.
type transcriptMessage struct {
	Role        string
	Text        string        // plain content, escaped by the template
	HTML        template.HTML // rendered markdown, assistant only
	CreatedAt   string
	Attachments []string
}

type transcriptPage struct {
	ConversationID string
	Summary        string
	Messages       []transcriptMessage
}

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{if .Summary}}{{.Summary}}{{else}}Conversation {{.ConversationID}}{{end}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.message { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 6px; }
.message .meta { font-size: 0.8rem; color: #666; margin-bottom: 0.25rem; }
.user { background: #eef4ff; }
.assistant { background: #f6f6f6; }
.system { background: #fffbe6; font-style: italic; }
.attachments { font-size: 0.85rem; color: #444; margin-top: 0.5rem; }
pre { overflow-x: auto; background: #2b2b2b; color: #eee; padding: 0.5rem; border-radius: 4px; }
</style>
</head>
<body>
<h1>{{if .Summary}}{{.Summary}}{{else}}Conversation{{end}}</h1>
{{range .Messages}}<div class="message {{.Role}}">
<div class="meta">{{.Role}} &middot; {{.CreatedAt}}</div>
{{if .HTML}}{{.HTML}}{{else}}<p>{{.Text}}</p>{{end}}
{{if .Attachments}}<div class="attachments">Attached: {{range $i, $a := .Attachments}}{{if $i}}, {{end}}{{$a}}{{end}}</div>{{end}}
</div>
{{end}}</body>
</html>
`))

// handleExport handles GET /conversations/{id}/export.
func (g *Gateway) handleExport(w http.ResponseWriter, r *http.Request, id string) {
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

	page := transcriptPage{ConversationID: id}
	if conv, err := g.store.GetConversation(r.Context(), id); err == nil && conv.Summary != nil {
		page.Summary = *conv.Summary
	}

	for _, m := range history {
		msg := transcriptMessage{
			Role:      string(m.Role),
			CreatedAt: m.CreatedAt.Format(time.RFC1123),
		}
		for _, a := range m.Attachments {
			msg.Attachments = append(msg.Attachments, a.FileName)
		}

		if m.Role == store.RoleAssistant {
			var buf bytes.Buffer
			if err := markdown.Convert([]byte(m.Content), &buf); err != nil {
				g.logger.Error("failed to render markdown", "error", err, "message_id", m.ID)
				msg.Text = m.Content
			} else {
				msg.HTML = template.HTML(buf.String())
			}
		} else {
			msg.Text = m.Content
		}

		page.Messages = append(page.Messages, msg)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := transcriptTemplate.Execute(w, page); err != nil {
		g.logger.Error("failed to render transcript", "error", err, "conversation_id", id)
	}
}
