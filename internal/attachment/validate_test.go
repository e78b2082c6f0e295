package attachment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectKind(t *testing.T) {
	cases := []struct {
		mime, name string
		want       Kind
		ok         bool
	}{
		{"application/pdf", "brief.pdf", KindDocument, true},
		{"text/plain; charset=utf-8", "notes.txt", KindDocument, true},
		{"application/octet-stream", "contract.DOCX", KindDocument, true},
		{"application/octet-stream", "blob.exe", "", false},
		{"image/heic", "photo.heic", KindImage, true},
		{"audio/mpeg", "memo.mp3", KindAudio, true},
		{"video/mp4", "clip.mp4", "", false},
	}
	for _, tc := range cases {
		got, ok := DetectKind(tc.mime, tc.name)
		assert.Equal(t, tc.ok, ok, tc.mime)
		assert.Equal(t, tc.want, got, tc.mime)
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(KindDocument, "application/pdf", "a.pdf", MaxDocumentSize))
	assert.ErrorIs(t, Validate(KindDocument, "application/pdf", "a.pdf", MaxDocumentSize+1), ErrTooLarge)
	assert.NoError(t, Validate(KindImage, "image/png", "a.png", MaxImageSize))
	assert.ErrorIs(t, Validate(KindAudio, "audio/ogg", "a.ogg", MaxAudioSize+1), ErrTooLarge)
	assert.ErrorIs(t, Validate(KindImage, "application/pdf", "a.pdf", 10), ErrUnsupportedType)
}
