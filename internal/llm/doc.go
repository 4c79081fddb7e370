// Package llm formats conversation history for an OpenAI-compatible
// chat-completions endpoint and streams the response back.
//
// # Formatter
//
// FormatHistory turns stored messages into role-tagged request entries.
// Attachments become multimodal content blocks keyed by their MIME type's
// primary category (image_url, video_url, input_audio, file_url), with the
// staged bytes embedded as base64 data URLs.
//
// # Client
//
// Client.Stream opens one streaming request per call:
//
//	fragments, err := client.Stream(ctx, msgs, settings)
//	for f := range fragments {
//		if f.Err != nil { ... }
//		buf.WriteString(f.Text)
//	}
//
// The fragment sequence is finite and not restartable. Empty deltas are
// filtered. Failures wrap ErrUpstream and terminate the sequence; retrying
// means making a fresh call.
package llm
