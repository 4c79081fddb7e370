// Package gateway exposes the chat backend over HTTP.
//
// The surface is a small JSON API for conversations and settings, a
// multipart POST /chat endpoint that streams the model's response as raw
// text fragments, a GET /events SSE feed of conversation lifecycle events,
// and an HTML transcript export. The gateway owns component wiring and
// server lifecycle; all domain behavior lives in the store, upload, llm and
// chat packages.
package gateway
