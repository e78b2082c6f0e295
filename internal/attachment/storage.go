package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Storage persists upload bytes. The returned locator is opaque to callers
// and never changes for a stored file.
type Storage interface {
	Save(ctx context.Context, kind Kind, fileName, mime string, r io.Reader) (string, error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
}

var ErrInvalidLocator = errors.New("invalid storage locator")

func subdir(kind Kind) string {
	switch kind {
	case KindImage:
		return "images"
	case KindAudio:
		return "audio"
	default:
		return "documents"
	}
}

// objectKey builds "<subdir>/<uuid><ext>".
func objectKey(kind Kind, fileName, mime string) string {
	return path.Join(subdir(kind), uuid.NewString()+extension(mime, fileName))
}

type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	for _, k := range []Kind{KindDocument, KindImage, KindAudio} {
		if err := os.MkdirAll(filepath.Join(baseDir, subdir(k)), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

func (s *LocalStorage) resolve(locator string) (string, error) {
	clean := path.Clean("/" + locator)
	if clean == "/" || strings.Contains(locator, "..") {
		return "", ErrInvalidLocator
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(clean)), nil
}

func (s *LocalStorage) Save(_ context.Context, kind Kind, fileName, mime string, r io.Reader) (string, error) {
	key := objectKey(kind, fileName, mime)
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	f, err := os.Create(full)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return key, nil
}

func (s *LocalStorage) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	full, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (s *LocalStorage) Delete(_ context.Context, locator string) error {
	full, err := s.resolve(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
