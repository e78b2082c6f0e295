package chat

import (
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/suPer8Hu/lexchat/internal/anon"
)

// Turn is the single in-memory shape of a history entry. Durable rows,
// anonymous records and client-supplied messages are all converted to it
// on load.
type Turn struct {
	Role    string
	Content string
	Sources []Source
}

// PreviousMessage is a message replayed by the client, e.g. from a shared chat.
type PreviousMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return RoleHuman
	case "assistant", "ai", "bot":
		return RoleAssistant
	case "system":
		return RoleSystem
	default:
		return RoleHuman
	}
}

func TurnsFromMessages(msgs []Message) []Turn {
	out := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Turn{Role: normalizeRole(m.Role), Content: m.Content, Sources: []Source(m.Sources)})
	}
	return out
}

func TurnsFromAnonymous(msgs []anon.Message) []Turn {
	out := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		t := Turn{Role: normalizeRole(m.Role), Content: m.Content}
		for _, s := range m.Sources {
			t.Sources = append(t.Sources, Source{URL: s.URL})
		}
		out = append(out, t)
	}
	return out
}

func TurnsFromPrevious(prev []PreviousMessage) []Turn {
	out := make([]Turn, 0, len(prev))
	for _, p := range prev {
		out = append(out, Turn{Role: normalizeRole(p.Role), Content: p.Content})
	}
	return out
}

// Transcript renders turns as "role: content" lines.
func Transcript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}

func toSchemaMessages(turns []Turn) []*schema.Message {
	out := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			out = append(out, schema.AssistantMessage(t.Content, nil))
		case RoleSystem:
			out = append(out, schema.SystemMessage(t.Content))
		default:
			out = append(out, schema.UserMessage(t.Content))
		}
	}
	return out
}

// durableMessages converts turns for replay into a durable chat.
func durableMessages(turns []Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, Message{Role: t.Role, Content: t.Content, Sources: t.Sources})
	}
	return out
}

func anonymousMessages(chatID string, turns []Turn, at time.Time) []anon.Message {
	out := make([]anon.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, anonymousMessage(chatID, t, nil, at))
	}
	return out
}

func anonymousMessage(chatID string, t Turn, atts []anon.AttachmentMeta, at time.Time) anon.Message {
	m := anon.Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		Role:        t.Role,
		Content:     t.Content,
		Attachments: atts,
		CreatedAt:   at.UTC(),
	}
	for _, s := range t.Sources {
		m.Sources = append(m.Sources, anon.Source{URL: s.URL})
	}
	return m
}

// titleFrom is the first 30 characters plus an ellipsis.
func titleFrom(content string) string {
	r := []rune(strings.TrimSpace(content))
	if len(r) > 30 {
		r = r[:30]
	}
	return string(r) + "..."
}
