package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/suPer8Hu/lexchat/internal/attachment"
)

const (
	titlePrompt   = "Summarize the following message in 5 words or less to create a chat title: %s"
	summaryPrompt = "Summarize the following conversation in 200 words or less: %s"

	defaultTitle = "New Chat"
)

var describePrompts = map[attachment.Kind]string{
	attachment.KindDocument: "Summarize the attached document %q in a few sentences, focusing on its legal substance.",
	attachment.KindAudio:    "Transcribe the attached audio recording %q, then summarize it in a few sentences.",
	attachment.KindImage:    "Describe the attached image %q, including any text or legal details it shows.",
}

// Generator runs the short single-shot prompts around a chat turn: titles,
// history summaries and attachment descriptions.
type Generator struct {
	model model.BaseChatModel
}

func NewGenerator(m model.BaseChatModel) *Generator {
	return &Generator{model: m}
}

func (g *Generator) Title(ctx context.Context, message string) (string, error) {
	out, err := g.complete(ctx, schema.UserMessage(fmt.Sprintf(titlePrompt, message)))
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	title := strings.Trim(strings.TrimSpace(out), `"'`)
	if title == "" {
		return defaultTitle, nil
	}
	return title, nil
}

func (g *Generator) Summarize(ctx context.Context, transcript string) (string, error) {
	out, err := g.complete(ctx, schema.UserMessage(fmt.Sprintf(summaryPrompt, transcript)))
	if err != nil {
		return "", fmt.Errorf("summarize history: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (g *Generator) Describe(ctx context.Context, kind attachment.Kind, fileName string, block *schema.Message) (string, error) {
	prompt, ok := describePrompts[kind]
	if !ok {
		prompt = describePrompts[attachment.KindDocument]
	}
	parts := []schema.ChatMessagePart{{
		Type: schema.ChatMessagePartTypeText,
		Text: fmt.Sprintf(prompt, fileName),
	}}
	if block != nil {
		parts = append(parts, block.MultiContent...)
	}
	out, err := g.complete(ctx, &schema.Message{Role: schema.User, MultiContent: parts})
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", fileName, err)
	}
	return strings.TrimSpace(out), nil
}

func (g *Generator) complete(ctx context.Context, msgs ...*schema.Message) (string, error) {
	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("empty model response")
	}
	return resp.Content, nil
}
