package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/lexchat/internal/anon"
	"github.com/suPer8Hu/lexchat/internal/logger"
	"gorm.io/gorm"
)

const (
	sharedChatTitle      = "Continued from shared chat"
	transferredChatTitle = "Transferred from anonymous chat"
)

// Actor is an authenticated caller. A nil *Actor means anonymous.
type Actor struct {
	UserID string
}

type ResolveInput struct {
	Actor              *Actor
	AnonymousSessionID string
	ChatID             string
	Message            string
	// PreviousMessages is nil when the client sent none; an empty non-nil
	// slice still marks a continuation of a shared chat.
	PreviousMessages []PreviousMessage
}

// Resolution is the chat a turn belongs to together with its history.
type Resolution struct {
	ChatID       string
	Durable      bool
	Chat         *Chat
	History      []Turn
	Migrated     bool
	LimitReached bool

	// prior is the anonymous record the next save extends.
	prior []anon.Message
}

type TitleGenerator interface {
	Title(ctx context.Context, message string) (string, error)
}

// Resolver decides which chat a turn belongs to and loads its history.
type Resolver struct {
	repo    *Repo
	store   anon.Store
	titles  TitleGenerator
	ceiling int
	log     *logger.Logger
}

func NewResolver(repo *Repo, store anon.Store, titles TitleGenerator, ceiling int, log *logger.Logger) *Resolver {
	return &Resolver{repo: repo, store: store, titles: titles, ceiling: ceiling, log: log}
}

func (r *Resolver) Resolve(ctx context.Context, in *ResolveInput) (*Resolution, error) {
	if in.Actor != nil {
		return r.resolveUser(ctx, in)
	}

	if in.AnonymousSessionID == "" {
		return nil, ErrMissingSession
	}
	count, allowed, err := r.store.IncrementIfBelow(ctx, in.AnonymousSessionID, r.ceiling)
	if err != nil {
		return nil, fmt.Errorf("check anonymous limit: %w", err)
	}
	if !allowed {
		r.log.Info("anonymous limit reached", "session", in.AnonymousSessionID, "count", count)
		return &Resolution{LimitReached: true}, nil
	}
	return r.resolveAnonymous(ctx, in)
}

func (r *Resolver) resolveUser(ctx context.Context, in *ResolveInput) (*Resolution, error) {
	switch {
	case in.ChatID == "":
		return r.newChat(ctx, in.Actor, in.Message)
	case !wellFormed(in.ChatID):
		if in.PreviousMessages != nil {
			return r.continueShared(ctx, in.Actor, in.PreviousMessages)
		}
		return r.newChat(ctx, in.Actor, in.Message)
	case in.AnonymousSessionID != "":
		return r.migrate(ctx, in)
	default:
		c, err := r.repo.GetOwnedChat(ctx, in.ChatID, in.Actor.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		if err != nil {
			return nil, err
		}
		return r.load(ctx, c, false)
	}
}

func (r *Resolver) resolveAnonymous(ctx context.Context, in *ResolveInput) (*Resolution, error) {
	session := in.AnonymousSessionID
	switch {
	case in.ChatID == "":
		return &Resolution{ChatID: uuid.NewString(), History: []Turn{}}, nil
	case !wellFormed(in.ChatID):
		id := uuid.NewString()
		history := TurnsFromPrevious(in.PreviousMessages)
		return &Resolution{
			ChatID:  id,
			History: history,
			prior:   anonymousMessages(id, history, time.Now()),
		}, nil
	default:
		msgs, err := r.store.Messages(ctx, session, in.ChatID)
		if err != nil {
			return nil, fmt.Errorf("load anonymous chat: %w", err)
		}
		if len(msgs) == 0 {
			r.log.Debug("anonymous chat not found, starting a new one", "session", session, "chat_id", in.ChatID)
			return &Resolution{ChatID: uuid.NewString(), History: []Turn{}}, nil
		}
		return &Resolution{ChatID: in.ChatID, History: TurnsFromAnonymous(msgs), prior: msgs}, nil
	}
}

func (r *Resolver) newChat(ctx context.Context, actor *Actor, message string) (*Resolution, error) {
	title, err := r.titles.Title(ctx, message)
	if err != nil {
		return nil, err
	}
	c := &Chat{UserID: &actor.UserID, Title: title}
	if err := r.repo.CreateChat(ctx, c); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &Resolution{ChatID: c.ID, Durable: true, Chat: c, History: []Turn{}}, nil
}

func (r *Resolver) continueShared(ctx context.Context, actor *Actor, prev []PreviousMessage) (*Resolution, error) {
	title := sharedChatTitle
	if len(prev) > 0 {
		title = titleFrom(prev[0].Content)
	}
	c := &Chat{UserID: &actor.UserID, Title: title}
	if err := r.repo.ImportChat(ctx, c, durableMessages(TurnsFromPrevious(prev))); err != nil {
		return nil, fmt.Errorf("import shared chat: %w", err)
	}
	return r.load(ctx, c, false)
}

func (r *Resolver) migrate(ctx context.Context, in *ResolveInput) (*Resolution, error) {
	owned, err := r.repo.GetOwnedChat(ctx, in.ChatID, in.Actor.UserID)
	if err == nil {
		return r.load(ctx, owned, false)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	msgs, err := r.store.Messages(ctx, in.AnonymousSessionID, in.ChatID)
	if err != nil {
		return nil, fmt.Errorf("load anonymous chat: %w", err)
	}
	if len(msgs) == 0 {
		return r.newChat(ctx, in.Actor, in.Message)
	}

	turns := TurnsFromAnonymous(msgs)
	title := transferredChatTitle
	for _, t := range turns {
		if t.Role == RoleHuman {
			title = titleFrom(t.Content)
			break
		}
	}

	id := in.ChatID
	if _, err := r.repo.GetChat(ctx, id); err == nil {
		// id already taken by another owner's chat
		id = ""
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	c := &Chat{ID: id, UserID: &in.Actor.UserID, Title: title}
	if err := r.repo.ImportChat(ctx, c, durableMessages(turns)); err != nil {
		return nil, fmt.Errorf("migrate anonymous chat: %w", err)
	}
	r.log.Info("anonymous chat migrated",
		"session", in.AnonymousSessionID,
		"from_chat_id", in.ChatID,
		"chat_id", c.ID,
		"user_id", in.Actor.UserID,
		"messages", len(msgs),
	)
	return r.load(ctx, c, true)
}

// load reads the durable history back so the turn sees what was stored.
func (r *Resolver) load(ctx context.Context, c *Chat, migrated bool) (*Resolution, error) {
	msgs, err := r.repo.ListMessages(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return &Resolution{
		ChatID:   c.ID,
		Durable:  true,
		Chat:     c,
		History:  TurnsFromMessages(msgs),
		Migrated: migrated,
	}, nil
}

func wellFormed(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
