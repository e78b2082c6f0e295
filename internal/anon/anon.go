// Package anon holds the records kept for anonymous visitors and the contract
// of the short-lived store they live in.
package anon

import (
	"context"
	"fmt"
	"time"
)

type Source struct {
	URL string `json:"url"`
}

type AttachmentMeta struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Message mirrors a durable chat message for a chat that has no owner yet.
type Message struct {
	ID          string           `json:"id"`
	ChatID      string           `json:"chat_id"`
	Role        string           `json:"role"`
	Content     string           `json:"content"`
	Sources     []Source         `json:"sources"`
	Attachments []AttachmentMeta `json:"attachments,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Store keeps anonymous chats and the per-session send counter. Every write
// refreshes the entry's expiry.
type Store interface {
	Count(ctx context.Context, session string) (int, error)
	Increment(ctx context.Context, session string) (int, error)
	// IncrementIfBelow atomically increments the counter only while it is
	// below ceiling. allowed is false (and the counter untouched) otherwise.
	IncrementIfBelow(ctx context.Context, session string, ceiling int) (count int, allowed bool, err error)
	Messages(ctx context.Context, session, chatID string) ([]Message, error)
	SaveMessages(ctx context.Context, session, chatID string, msgs []Message) error
	// ClearChats drops every chat of the session. The send counter is kept
	// until it expires.
	ClearChats(ctx context.Context, session string) error
}

func CountKey(session string) string {
	return fmt.Sprintf("anonymous:count:%s", session)
}

func ChatKey(session, chatID string) string {
	return fmt.Sprintf("anonymous:chat:%s:%s", session, chatID)
}

func ChatKeyPrefix(session string) string {
	return fmt.Sprintf("anonymous:chat:%s:", session)
}
