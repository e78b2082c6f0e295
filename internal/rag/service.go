// Package rag answers a question from retrieved legal material and the
// bounded chat history.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/suPer8Hu/lexchat/internal/logger"
)

var ErrEmptyResponse = errors.New("empty model response")

type Request struct {
	Input       string
	History     []*schema.Message
	Attachments []*schema.Message
}

type Result struct {
	Answer  string
	Context []*schema.Document
}

type Service struct {
	model     model.BaseChatModel
	retriever retriever.Retriever
	log       *logger.Logger
}

// NewService wires the answer pipeline. A nil retriever answers without
// retrieved context.
func NewService(m model.BaseChatModel, r retriever.Retriever, log *logger.Logger) *Service {
	return &Service{model: m, retriever: r, log: log.With("component", "rag.Service")}
}

func (s *Service) Answer(ctx context.Context, req *Request) (*Result, error) {
	query := req.Input
	if len(req.History) > 0 {
		q, err := s.standaloneQuestion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("rewrite question: %w", err)
		}
		query = q
	}

	var docs []*schema.Document
	if s.retriever != nil {
		var err error
		docs, err = s.retriever.Retrieve(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("retrieve: %w", err)
		}
	}
	s.log.Debug("retrieved context", "query", query, "documents", len(docs))

	resp, err := s.model.Generate(ctx, buildAnswerMessages(req, docs))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrEmptyResponse
	}
	return &Result{Answer: resp.Content, Context: docs}, nil
}

func (s *Service) standaloneQuestion(ctx context.Context, req *Request) (string, error) {
	msgs := make([]*schema.Message, 0, len(req.History)+2)
	msgs = append(msgs, schema.SystemMessage(contextualizePrompt))
	msgs = append(msgs, req.History...)
	msgs = append(msgs, schema.UserMessage(req.Input))

	resp, err := s.model.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return req.Input, nil
	}
	if q := strings.TrimSpace(resp.Content); q != "" {
		return q, nil
	}
	return req.Input, nil
}

func buildAnswerMessages(req *Request, docs []*schema.Document) []*schema.Message {
	var sys strings.Builder
	sys.WriteString(answerPrompt)
	sys.WriteString("\n\n")
	for _, d := range docs {
		sys.WriteString(d.Content)
		sys.WriteString("\n\n")
	}

	msgs := make([]*schema.Message, 0, len(req.History)+2)
	msgs = append(msgs, schema.SystemMessage(strings.TrimRight(sys.String(), "\n")))
	msgs = append(msgs, req.History...)

	if len(req.Attachments) == 0 {
		return append(msgs, schema.UserMessage(req.Input))
	}
	parts := []schema.ChatMessagePart{{Type: schema.ChatMessagePartTypeText, Text: req.Input}}
	for _, b := range req.Attachments {
		parts = append(parts, b.MultiContent...)
	}
	return append(msgs, &schema.Message{Role: schema.User, MultiContent: parts})
}
