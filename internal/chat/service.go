package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/suPer8Hu/lexchat/internal/anon"
	"github.com/suPer8Hu/lexchat/internal/attachment"
	"github.com/suPer8Hu/lexchat/internal/logger"
	"github.com/suPer8Hu/lexchat/internal/rag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	LimitReachedChatID  = "limit_reached"
	LimitReachedMessage = "Message limit reached. Please login to continue."

	unknownSource = "Unknown"
)

// Generator is the part of the generation service a chat turn needs
// besides the answer itself.
type Generator interface {
	TitleGenerator
	Summarizer
}

type Answerer interface {
	Answer(ctx context.Context, req *rag.Request) (*rag.Result, error)
}

type AttachmentProcessor interface {
	Process(ctx context.Context, owner string, refs []attachment.Ref) (*attachment.Result, error)
}

type UsageSink interface {
	RecordUsage(ctx context.Context, userID string, tokens int) error
}

type Deps struct {
	Repo        *Repo
	Store       anon.Store
	Resolver    *Resolver
	Budget      *Budget
	Answerer    Answerer
	Attachments AttachmentProcessor
	// Usage may be nil, in which case no usage is recorded.
	Usage UsageSink
	Log   *logger.Logger
}

type Service struct {
	repo        *Repo
	store       anon.Store
	resolver    *Resolver
	budget      *Budget
	answerer    Answerer
	attachments AttachmentProcessor
	usage       UsageSink
	log         *logger.Logger
	tracer      trace.Tracer
}

func NewService(d Deps) *Service {
	return &Service{
		repo:        d.Repo,
		store:       d.Store,
		resolver:    d.Resolver,
		budget:      d.Budget,
		answerer:    d.Answerer,
		attachments: d.Attachments,
		usage:       d.Usage,
		log:         d.Log.With("component", "chat.Service"),
		tracer:      otel.Tracer("github.com/suPer8Hu/lexchat/internal/chat"),
	}
}

type Request struct {
	Actor              *Actor
	AnonymousSessionID string
	ChatID             string
	Message            string
	PreviousMessages   []PreviousMessage
	Attachments        []attachment.Ref
}

type Response struct {
	ChatID       string   `json:"chat_id"`
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	LimitReached bool     `json:"limit_reached"`
}

func limitReachedResponse() *Response {
	return &Response{
		ChatID:       LimitReachedChatID,
		Answer:       LimitReachedMessage,
		Sources:      []Source{},
		LimitReached: true,
	}
}

// Chat runs one turn: resolve the chat, process attachments, bound the
// history, generate and then persist. Nothing is written unless generation
// succeeds.
func (s *Service) Chat(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := s.tracer.Start(ctx, "chat.Turn")
	defer span.End()

	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	res, err := s.resolve(ctx, req)
	if err != nil {
		return nil, fail(span, err)
	}
	if res.LimitReached {
		span.SetAttributes(attribute.Bool("chat.limit_reached", true))
		return limitReachedResponse(), nil
	}
	span.SetAttributes(
		attribute.String("chat.id", res.ChatID),
		attribute.Bool("chat.durable", res.Durable),
	)

	processed, err := s.processAttachments(ctx, req.Actor, req.Attachments)
	if err != nil {
		return nil, fail(span, err)
	}

	bounded, err := s.bound(ctx, res.History)
	if err != nil {
		return nil, fail(span, err)
	}

	answer, err := s.generate(ctx, &rag.Request{
		Input:       composeInput(req.Message, processed.Summaries),
		History:     toSchemaMessages(bounded),
		Attachments: processed.Blocks,
	})
	if err != nil {
		return nil, fail(span, err)
	}
	sources := sourcesFrom(answer.Context)

	if err := s.persist(ctx, req, res, processed.Attachments, answer.Answer, sources, bounded); err != nil {
		return nil, fail(span, err)
	}

	return &Response{ChatID: res.ChatID, Answer: answer.Answer, Sources: sources}, nil
}

func (s *Service) resolve(ctx context.Context, req *Request) (*Resolution, error) {
	ctx, span := s.tracer.Start(ctx, "chat.Resolve")
	defer span.End()

	res, err := s.resolver.Resolve(ctx, &ResolveInput{
		Actor:              req.Actor,
		AnonymousSessionID: req.AnonymousSessionID,
		ChatID:             req.ChatID,
		Message:            req.Message,
		PreviousMessages:   req.PreviousMessages,
	})
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Bool("chat.migrated", res.Migrated))
	return res, nil
}

func (s *Service) processAttachments(ctx context.Context, actor *Actor, refs []attachment.Ref) (*attachment.Result, error) {
	if len(refs) == 0 || s.attachments == nil {
		return &attachment.Result{}, nil
	}
	ctx, span := s.tracer.Start(ctx, "chat.Attachments")
	defer span.End()
	span.SetAttributes(attribute.Int("attachments.requested", len(refs)))

	owner := ""
	if actor != nil {
		owner = actor.UserID
	}
	out, err := s.attachments.Process(ctx, owner, refs)
	if err != nil {
		return nil, fail(span, fmt.Errorf("process attachments: %w", err))
	}
	span.SetAttributes(attribute.Int("attachments.resolved", len(out.Attachments)))
	return out, nil
}

func (s *Service) bound(ctx context.Context, history []Turn) ([]Turn, error) {
	ctx, span := s.tracer.Start(ctx, "chat.Budget")
	defer span.End()

	out, err := s.budget.Bound(ctx, history)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(
		attribute.Int("history.turns", len(history)),
		attribute.Int("history.limit", s.budget.Limit()),
		attribute.Bool("history.summarized", summarized(out)),
	)
	return out, nil
}

func (s *Service) generate(ctx context.Context, req *rag.Request) (*rag.Result, error) {
	ctx, span := s.tracer.Start(ctx, "chat.Generate")
	defer span.End()

	out, err := s.answerer.Answer(ctx, req)
	if err != nil {
		return nil, fail(span, fmt.Errorf("generate answer: %w", err))
	}
	return out, nil
}

func (s *Service) persist(ctx context.Context, req *Request, res *Resolution, atts []*attachment.Attachment, answer string, sources []Source, bounded []Turn) error {
	ctx, span := s.tracer.Start(ctx, "chat.Persist")
	defer span.End()

	if res.Durable {
		human := &Message{ChatID: res.ChatID, Role: RoleHuman, Content: req.Message}
		assistant := &Message{Role: RoleAssistant, Content: answer, Sources: sources}
		ids := make([]string, 0, len(atts))
		for _, a := range atts {
			ids = append(ids, a.ID)
		}
		if err := s.repo.AppendExchange(ctx, human, assistant, ids); err != nil {
			return fail(span, fmt.Errorf("save messages: %w", err))
		}

		if s.usage != nil {
			used := s.budget.Count(req.Message) + s.budget.Count(answer) + s.budget.Sum(bounded)
			if err := s.usage.RecordUsage(ctx, req.Actor.UserID, used); err != nil {
				s.log.Warn("record usage failed", "user_id", req.Actor.UserID, "tokens", used, "err", err)
			}
		}
		return nil
	}

	metas := make([]anon.AttachmentMeta, 0, len(atts))
	for _, a := range atts {
		metas = append(metas, anon.AttachmentMeta{ID: a.ID, FileName: a.FileName, FileType: a.FileType, FileSize: a.FileSize})
	}
	if len(metas) == 0 {
		metas = nil
	}

	now := time.Now()
	msgs := make([]anon.Message, 0, len(res.prior)+2)
	msgs = append(msgs, res.prior...)
	msgs = append(msgs,
		anonymousMessage(res.ChatID, Turn{Role: RoleHuman, Content: req.Message}, metas, now),
		anonymousMessage(res.ChatID, Turn{Role: RoleAssistant, Content: answer, Sources: sources}, nil, now.Add(time.Millisecond)),
	)
	if err := s.store.SaveMessages(ctx, req.AnonymousSessionID, res.ChatID, msgs); err != nil {
		return fail(span, fmt.Errorf("save anonymous messages: %w", err))
	}
	return nil
}

// composeInput appends attachment summaries to the user's message.
func composeInput(message string, summaries []attachment.Summary) string {
	if len(summaries) == 0 {
		return message
	}
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\nAttachment summaries:")
	for _, sm := range summaries {
		fmt.Fprintf(&b, "\n- %s: %s", sm.FileName, sm.Text)
	}
	return b.String()
}

// sourcesFrom yields one entry per document, "Unknown" when it has no source.
func sourcesFrom(docs []*schema.Document) []Source {
	out := make([]Source, 0, len(docs))
	for _, d := range docs {
		url := unknownSource
		if d != nil {
			if v, ok := d.MetaData["source"].(string); ok && v != "" {
				url = v
			}
		}
		out = append(out, Source{URL: url})
	}
	return out
}

func summarized(turns []Turn) bool {
	return len(turns) == 1 && turns[0].Role == RoleSystem && strings.HasPrefix(turns[0].Content, summaryPrefix)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
