// Package photos stores the evidence photo attached to a report and returns
// the reference recorded in fotoUrl.
package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vialactivo/pkg/shared"
)

// MaxPhotoBytes bounds an uploaded photo.
const MaxPhotoBytes = 10 << 20

// UploadsRoute is where LocalStore files are served.
const UploadsRoute = "/uploads/"

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// Store saves a photo and returns its public reference. Remove deletes a
// photo by that reference; unknown references are not an error.
type Store interface {
	Save(ctx context.Context, contentType string, r io.Reader) (string, error)
	Remove(ctx context.Context, ref string) error
}

// copyPhoto copies at most MaxPhotoBytes and fails with a ValidationError
// when r holds more.
func copyPhoto(dst io.Writer, r io.Reader) error {
	n, err := io.Copy(dst, io.LimitReader(r, MaxPhotoBytes+1))
	if err != nil {
		return err
	}
	if n > MaxPhotoBytes {
		return shared.NewValidationError("foto", fmt.Sprintf("must be at most %d bytes", MaxPhotoBytes))
	}
	return nil
}

// ExtensionFor returns the file extension for an accepted content type or
// a ValidationError.
func ExtensionFor(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext, ok := extensions[ct]
	if !ok {
		return "", shared.NewValidationError("foto", "only JPEG and PNG images are accepted")
	}
	return ext, nil
}

func newObjectName(ext string) string {
	return uuid.NewString() + ext
}

// LocalStore writes photos to a directory served under UploadsRoute.
type LocalStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

func NewLocalStore(dir, publicBaseURL string, logger *zap.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(publicBaseURL, "/"), logger: logger}, nil
}

// Dir is the directory holding the uploaded files.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Save(ctx context.Context, contentType string, r io.Reader) (string, error) {
	ext, err := ExtensionFor(contentType)
	if err != nil {
		return "", err
	}
	name := newObjectName(ext)
	dst := filepath.Join(s.dir, name)

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create photo file: %w", err)
	}
	if err := copyPhoto(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		if shared.IsValidation(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to close photo file: %w", err)
	}

	s.logger.Debug("Stored photo", zap.String("path", dst))
	return s.baseURL + UploadsRoute + name, nil
}

func (s *LocalStore) Remove(ctx context.Context, ref string) error {
	name := path.Base(ref)
	if !strings.HasPrefix(ref, s.baseURL+UploadsRoute) || name == "." || name == "/" {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove photo: %w", err)
	}
	s.logger.Debug("Removed photo", zap.String("name", name))
	return nil
}

// GCSStore uploads photos to a Cloud Storage bucket. The client honours
// STORAGE_EMULATOR_HOST.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

func NewGCSStore(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*GCSStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), logger: logger}, nil
}

func (s *GCSStore) Save(ctx context.Context, contentType string, r io.Reader) (string, error) {
	ext, err := ExtensionFor(contentType)
	if err != nil {
		return "", err
	}
	key := s.objectKey(newObjectName(ext))

	// cancelling the writer's context aborts the upload
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(wctx)
	w.ContentType = contentType
	if err := copyPhoto(w, r); err != nil {
		cancel()
		_ = w.Close()
		if shared.IsValidation(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to upload photo: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize photo upload: %w", err)
	}

	s.logger.Debug("Uploaded photo", zap.String("bucket", s.bucket), zap.String("key", key))
	return PublicURL(s.bucket, key), nil
}

func (s *GCSStore) Remove(ctx context.Context, ref string) error {
	prefix := PublicURL(s.bucket, "")
	if !strings.HasPrefix(ref, prefix) {
		return nil
	}
	key := strings.TrimPrefix(ref, prefix)
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete photo %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) objectKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// PublicURL is the public HTTPS address of a bucket object.
func PublicURL(bucket, key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}
