package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/lexchat/internal/anon"
	"gorm.io/gorm"
)

const defaultChatTitle = "New Chat"

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrChatNotFound
	}
	return err
}

func (s *Service) CreateChat(ctx context.Context, userID, title string) (*Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultChatTitle
	}
	c := &Chat{UserID: &userID, Title: title}
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	return s.repo.ListChats(ctx, userID)
}

func (s *Service) GetChat(ctx context.Context, userID, chatID string) (*Chat, error) {
	c, err := s.repo.GetOwnedChat(ctx, chatID, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Service) Messages(ctx context.Context, userID, chatID string) ([]Message, error) {
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, chatID)
}

// AddMessage appends a single message to an owned chat without generating a reply.
func (s *Service) AddMessage(ctx context.Context, userID, chatID, role, content string, sources []Source) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	m := &Message{ChatID: chatID, Role: normalizeRole(role), Content: content, Sources: sources}
	if err := s.repo.AddMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ShareChat(ctx context.Context, userID, chatID string) (*Chat, error) {
	c, err := s.repo.MarkShared(ctx, chatID, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Service) SharedChat(ctx context.Context, chatID string) (*Chat, error) {
	c, err := s.repo.GetShared(ctx, chatID)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Service) SharedMessages(ctx context.Context, chatID string) ([]Message, error) {
	if _, err := s.SharedChat(ctx, chatID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, chatID)
}

func (s *Service) AnonymousMessages(ctx context.Context, session, chatID string) ([]anon.Message, error) {
	if session == "" {
		return nil, ErrMissingSession
	}
	msgs, err := s.store.Messages(ctx, session, chatID)
	if err != nil {
		return nil, fmt.Errorf("load anonymous chat: %w", err)
	}
	if msgs == nil {
		msgs = []anon.Message{}
	}
	return msgs, nil
}

// ClearAnonymous drops every chat of a session. The send counter survives so
// clearing never buys more messages.
func (s *Service) ClearAnonymous(ctx context.Context, session string) error {
	if session == "" {
		return ErrMissingSession
	}
	return s.store.ClearChats(ctx, session)
}
