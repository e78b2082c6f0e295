package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/suPer8Hu/lexchat/internal/logger"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Ref names a previously uploaded attachment in a chat request.
type Ref struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size,omitempty"`
}

type Summary struct {
	AttachmentID string
	FileName     string
	Text         string
}

type Result struct {
	// Blocks are user-role content blocks, one per resolved attachment.
	Blocks      []*schema.Message
	Attachments []*Attachment
	Summaries   []Summary
}

type Getter interface {
	Get(ctx context.Context, id string) (*Attachment, error)
}

// Describer produces a short natural-language account of one attachment
// (summary, transcript or image description depending on kind).
type Describer interface {
	Describe(ctx context.Context, kind Kind, fileName string, block *schema.Message) (string, error)
}

type Processor struct {
	repo      Getter
	storage   Storage
	extractor TextExtractor
	describer Describer
	log       *logger.Logger
	workers   int
}

type ProcessorOption func(*Processor)

// WithDescriber enables per-attachment summaries.
func WithDescriber(d Describer) ProcessorOption {
	return func(p *Processor) { p.describer = d }
}

func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

func NewProcessor(repo Getter, storage Storage, extractor TextExtractor, log *logger.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		log:       log.With("component", "attachment.Processor"),
		workers:   4,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type processed struct {
	att     *Attachment
	block   *schema.Message
	summary *Summary
}

// Process resolves refs in order on behalf of owner (empty for anonymous
// callers). A missing attachment or one uploaded by another user is skipped
// and a failing one degrades to placeholder text; neither fails the call.
func (p *Processor) Process(ctx context.Context, owner string, refs []Ref) (*Result, error) {
	out := make([]processed, len(refs))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, ref := range refs {
		g.Go(func() error {
			out[i] = p.processOne(ctx, owner, ref)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, r := range out {
		if r.att == nil {
			continue
		}
		res.Attachments = append(res.Attachments, r.att)
		res.Blocks = append(res.Blocks, r.block)
		if r.summary != nil {
			res.Summaries = append(res.Summaries, *r.summary)
		}
	}
	return res, nil
}

func (p *Processor) processOne(ctx context.Context, owner string, ref Ref) processed {
	a, err := p.repo.Get(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.log.Warn("attachment not found, skipping", "attachment_id", ref.ID, "file_name", ref.FileName)
		} else {
			p.log.Warn("attachment lookup failed, skipping", "attachment_id", ref.ID, "error", err)
		}
		return processed{}
	}
	if !a.AccessibleBy(owner) {
		p.log.Warn("attachment belongs to another user, skipping", "attachment_id", a.ID)
		return processed{}
	}

	kind := KindOf(a)
	block, err := p.buildBlock(ctx, kind, a)
	if err != nil {
		p.log.Warn("attachment unreadable", "attachment_id", a.ID, "file_name", a.FileName, "error", err)
		block = textBlock(a, fmt.Sprintf("[Could not read attachment: %s]", a.FileName))
	}

	res := processed{att: a, block: block}
	if p.describer != nil {
		text, err := p.describer.Describe(ctx, kind, a.FileName, block)
		text = strings.TrimSpace(text)
		if err != nil || text == "" {
			p.log.Warn("attachment description failed", "attachment_id", a.ID, "error", err)
			text = fmt.Sprintf("[Could not generate a description for %s]", a.FileName)
		}
		res.summary = &Summary{AttachmentID: a.ID, FileName: a.FileName, Text: text}
	}
	return res
}

func (p *Processor) buildBlock(ctx context.Context, kind Kind, a *Attachment) (*schema.Message, error) {
	data, err := p.read(ctx, a.FilePath)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindImage:
		return mediaBlock(a, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL:      dataURI(a.FileType, data),
				MIMEType: baseMIME(a.FileType),
			},
		}), nil
	case KindAudio:
		return mediaBlock(a, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeAudioURL,
			AudioURL: &schema.ChatMessageAudioURL{
				URL:      dataURI(a.FileType, data),
				MIMEType: baseMIME(a.FileType),
			},
		}), nil
	default:
		name := a.FileName
		if filepath.Ext(name) == "" {
			name += extension(a.FileType, "")
		}
		return textBlock(a, p.extractor.Extract(ctx, name, data)), nil
	}
}

func (p *Processor) read(ctx context.Context, locator string) ([]byte, error) {
	rc, err := p.storage.Open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func dataURI(mime string, data []byte) string {
	return "data:" + baseMIME(mime) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func blockExtra(a *Attachment) map[string]any {
	return map[string]any{
		"attachment_id": a.ID,
		"file_name":     a.FileName,
		"file_type":     a.FileType,
	}
}

func textBlock(a *Attachment, text string) *schema.Message {
	return &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{{
			Type: schema.ChatMessagePartTypeText,
			Text: fmt.Sprintf("[Attachment: %s]\n%s", a.FileName, text),
		}},
		Extra: blockExtra(a),
	}
}

func mediaBlock(a *Attachment, part schema.ChatMessagePart) *schema.Message {
	return &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: fmt.Sprintf("[Attachment: %s]", a.FileName)},
			part,
		},
		Extra: blockExtra(a),
	}
}
