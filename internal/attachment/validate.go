package attachment

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

type Kind string

const (
	KindDocument Kind = "document"
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
)

const (
	MaxDocumentSize = 5 << 20
	MaxImageSize    = 10 << 20
	MaxAudioSize    = 20 << 20
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

var documentTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"text/plain":    {},
	"text/markdown": {},
	"text/csv":      {},
}

var audioTypes = map[string]struct{}{
	"audio/wav":   {},
	"audio/x-wav": {},
	"audio/mp3":   {},
	"audio/mpeg":  {},
	"audio/aiff":  {},
	"audio/aac":   {},
	"audio/flac":  {},
	"audio/ogg":   {},
	"audio/webm":  {},
	"audio/mp4":   {},
	"audio/x-m4a": {},
}

var documentExts = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".txt": {}, ".md": {}, ".csv": {},
}

// baseMIME strips parameters such as "; charset=utf-8".
func baseMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// DetectKind classifies an upload by MIME type. Octet-stream uploads are
// accepted as documents when the file extension says so.
func DetectKind(mime, fileName string) (Kind, bool) {
	mime = baseMIME(mime)
	if mime == "application/octet-stream" {
		if _, ok := documentExts[strings.ToLower(filepath.Ext(fileName))]; ok {
			return KindDocument, true
		}
		return "", false
	}
	if _, ok := documentTypes[mime]; ok {
		return KindDocument, true
	}
	if strings.HasPrefix(mime, "image/") {
		return KindImage, true
	}
	if _, ok := audioTypes[mime]; ok {
		return KindAudio, true
	}
	return "", false
}

// Validate checks an upload against the allow-list and size limit of kind.
func Validate(kind Kind, mime, fileName string, size int64) error {
	detected, ok := DetectKind(mime, fileName)
	if !ok || detected != kind {
		return fmt.Errorf("%w: %s as %s", ErrUnsupportedType, baseMIME(mime), kind)
	}
	var limit int64
	switch kind {
	case KindDocument:
		limit = MaxDocumentSize
	case KindImage:
		limit = MaxImageSize
	case KindAudio:
		limit = MaxAudioSize
	}
	if size > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, limit)
	}
	return nil
}

// KindOf classifies a stored attachment for processing.
func KindOf(a *Attachment) Kind {
	mime := baseMIME(a.FileType)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	default:
		return KindDocument
	}
}

var extByType = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"text/plain":  ".txt",
	"image/jpeg":  ".jpg",
	"image/png":   ".png",
	"image/gif":   ".gif",
	"image/webp":  ".webp",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/ogg":   ".ogg",
	"audio/webm":  ".webm",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
}

// extension prefers the uploaded file's own extension.
func extension(mime, fileName string) string {
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" {
		return ext
	}
	if ext, ok := extByType[baseMIME(mime)]; ok {
		return ext
	}
	return ".bin"
}
