// Package store provides SQLite-backed persistence for conversations.
//
// # Overview
//
// The store owns four relations: conversations, messages, attachments and
// the settings singleton. Attachment bytes live outside the database,
// referenced by path; the store only records metadata.
//
// # Invariants
//
//   - Every message references an existing conversation; AddMessage returns
//     ErrNotFound otherwise.
//   - A message append (message row + attachment rows + last_updated bump)
//     is one transaction; partial attachment writes are never observable.
//   - Within a conversation, history order is (created_at, insertion order).
//   - The settings row is a single logical instance, overwritten in place.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("data/chatloom.db")
//	id, err := s.CreateConversation(ctx)
//	msgID, err := s.AddMessage(ctx, id, store.RoleUser, "hello", store.ContentTypeText, nil)
//	history, err := s.GetConversationHistory(ctx, id)
//
// GetConversationHistory returns an empty slice for unknown conversations;
// callers treat a non-empty result as proof of existence.
package store
