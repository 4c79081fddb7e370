// Package chat coordinates a conversation turn across the store, the
// attachment stager and the completion client, and fans conversation
// lifecycle events out to subscribers.
//
// A turn is one Orchestrator.RunTurn call: the system prompt is reconciled
// into the history, uploads are staged and recorded, the user message is
// persisted, and the completion response is streamed to the caller while
// being accumulated for persistence. The assistant message is saved under a
// detached context, so a caller that disconnects mid-stream never loses the
// partial response. Summary generation runs after the turn and is strictly
// best-effort.
//
// The Broadcaster delivers Events (conversation_created, conversation_deleted,
// message_added, summary_updated) to every subscriber with non-blocking,
// best-effort semantics.
package chat
