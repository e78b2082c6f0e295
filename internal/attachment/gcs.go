package attachment

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStorage keeps uploads in a Cloud Storage bucket. Locators are object keys.
type GCSStorage struct {
	client *storage.Client
	bucket string
}

func NewGCSStorage(ctx context.Context, bucket, credentialsFile string) (*GCSStorage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs: bucket name required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStorage{client: client, bucket: bucket}, nil
}

func (s *GCSStorage) Save(ctx context.Context, kind Kind, fileName, mime string, r io.Reader) (string, error) {
	key := objectKey(kind, fileName, mime)
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = mime
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs upload %s: %w", key, err)
	}
	return key, nil
}

func (s *GCSStorage) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	return s.client.Bucket(s.bucket).Object(locator).NewReader(ctx)
}

func (s *GCSStorage) Delete(ctx context.Context, locator string) error {
	err := s.client.Bucket(s.bucket).Object(locator).Delete(ctx)
	if err == storage.ErrObjectNotExist {
		return nil
	}
	return err
}

func (s *GCSStorage) Close() error {
	return s.client.Close()
}
