package attachment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/lexchat/internal/logger"
	"gorm.io/gorm"
)

type mapGetter map[string]*Attachment

func (m mapGetter) Get(_ context.Context, id string) (*Attachment, error) {
	if a, ok := m[id]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeDescriber struct {
	failFor string
}

func (d *fakeDescriber) Describe(_ context.Context, _ Kind, fileName string, _ *schema.Message) (string, error) {
	if fileName == d.failFor {
		return "", errors.New("model unavailable")
	}
	return "about " + fileName, nil
}

func newFixture(t *testing.T) (*LocalStorage, *Extractor) {
	t.Helper()
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ex, err := NewExtractor(context.Background())
	require.NoError(t, err)
	return st, ex
}

func store(t *testing.T, st *LocalStorage, id, name, mime, body string) *Attachment {
	t.Helper()
	kind, ok := DetectKind(mime, name)
	require.True(t, ok)
	loc, err := st.Save(context.Background(), kind, name, mime, strings.NewReader(body))
	require.NoError(t, err)
	return &Attachment{ID: id, FileName: name, FileType: mime, FileSize: int64(len(body)), FilePath: loc}
}

func TestProcess_TextDocumentBlockTaggedWithFileName(t *testing.T) {
	st, ex := newFixture(t)
	doc := store(t, st, "a1", "act.txt", "text/plain", "Section 5 exempts...")
	p := NewProcessor(mapGetter{"a1": doc}, st, ex, logger.Nop())

	res, err := p.Process(context.Background(), "", []Ref{{ID: "a1", FileName: "act.txt", FileType: "text/plain"}})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	require.Len(t, res.Attachments, 1)
	assert.Empty(t, res.Summaries)

	b := res.Blocks[0]
	assert.Equal(t, schema.User, b.Role)
	assert.Equal(t, "act.txt", b.Extra["file_name"])
	require.Len(t, b.MultiContent, 1)
	assert.Equal(t, "[Attachment: act.txt]\nSection 5 exempts...", b.MultiContent[0].Text)
}

func TestProcess_ImageAndAudioAreDataURIs(t *testing.T) {
	st, ex := newFixture(t)
	img := store(t, st, "i1", "scan.png", "image/png", "PNG")
	aud := store(t, st, "v1", "memo.mp3", "audio/mpeg", "ID3")
	p := NewProcessor(mapGetter{"i1": img, "v1": aud}, st, ex, logger.Nop())

	res, err := p.Process(context.Background(), "", []Ref{{ID: "i1"}, {ID: "v1"}})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 2)

	imgPart := res.Blocks[0].MultiContent[1]
	assert.Equal(t, schema.ChatMessagePartTypeImageURL, imgPart.Type)
	assert.Equal(t, "data:image/png;base64,UE5H", imgPart.ImageURL.URL)

	audPart := res.Blocks[1].MultiContent[1]
	assert.Equal(t, schema.ChatMessagePartTypeAudioURL, audPart.Type)
	assert.Equal(t, "audio/mpeg", audPart.AudioURL.MIMEType)
	assert.True(t, strings.HasPrefix(audPart.AudioURL.URL, "data:audio/mpeg;base64,"))
}

func TestProcess_SkipsMissingAndKeepsOrder(t *testing.T) {
	st, ex := newFixture(t)
	a := store(t, st, "a", "a.txt", "text/plain", "first")
	b := store(t, st, "b", "b.md", "text/markdown", "second")
	p := NewProcessor(mapGetter{"a": a, "b": b}, st, ex, logger.Nop(), WithWorkers(3))

	res, err := p.Process(context.Background(), "", []Ref{{ID: "b"}, {ID: "missing"}, {ID: "a"}})
	require.NoError(t, err)
	require.Len(t, res.Attachments, 2)
	assert.Equal(t, "b", res.Attachments[0].ID)
	assert.Equal(t, "a", res.Attachments[1].ID)
}

func TestProcess_DegradesToPlaceholders(t *testing.T) {
	st, ex := newFixture(t)
	doc := store(t, st, "d", "old.doc", "application/msword", "binary")
	broken := &Attachment{ID: "x", FileName: "gone.pdf", FileType: "application/pdf", FilePath: "documents/nope.pdf"}
	desc := &fakeDescriber{failFor: "gone.pdf"}
	p := NewProcessor(mapGetter{"d": doc, "x": broken}, st, ex, logger.Nop(), WithDescriber(desc))

	res, err := p.Process(context.Background(), "", []Ref{{ID: "d"}, {ID: "x"}})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 2)
	assert.Contains(t, res.Blocks[0].MultiContent[0].Text, "[Text extraction not supported for this file type: .doc]")
	assert.Contains(t, res.Blocks[1].MultiContent[0].Text, "[Could not read attachment: gone.pdf]")

	require.Len(t, res.Summaries, 2)
	assert.Equal(t, "about old.doc", res.Summaries[0].Text)
	assert.Equal(t, "[Could not generate a description for gone.pdf]", res.Summaries[1].Text)
}

func TestExtractor_InvalidPDF(t *testing.T) {
	_, ex := newFixture(t)
	assert.Equal(t, extractFailedText, ex.Extract(context.Background(), "broken.pdf", []byte("not a pdf")))
}

func TestProcess_SkipsAttachmentsOfOtherUsers(t *testing.T) {
	st, ex := newFixture(t)
	alice, bob := "alice", "bob"
	mine := store(t, st, "m", "mine.txt", "text/plain", "mine")
	mine.OwnerID = &alice
	theirs := store(t, st, "t", "theirs.txt", "text/plain", "theirs")
	theirs.OwnerID = &bob
	shared := store(t, st, "s", "open.txt", "text/plain", "open")
	p := NewProcessor(mapGetter{"m": mine, "t": theirs, "s": shared}, st, ex, logger.Nop())

	res, err := p.Process(context.Background(), alice, []Ref{{ID: "m"}, {ID: "t"}, {ID: "s"}})
	require.NoError(t, err)
	require.Len(t, res.Attachments, 2)
	assert.Equal(t, "m", res.Attachments[0].ID)
	assert.Equal(t, "s", res.Attachments[1].ID)

	res, err = p.Process(context.Background(), "", []Ref{{ID: "m"}, {ID: "s"}})
	require.NoError(t, err)
	require.Len(t, res.Attachments, 1)
	assert.Equal(t, "s", res.Attachments[0].ID)
}

func TestProcess_CanceledContext(t *testing.T) {
	st, ex := newFixture(t)
	doc := store(t, st, "a1", "act.txt", "text/plain", "Section 5 exempts...")
	p := NewProcessor(mapGetter{"a1": doc}, st, ex, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Process(ctx, "", []Ref{{ID: "a1"}})
	require.ErrorIs(t, err, context.Canceled)
}
