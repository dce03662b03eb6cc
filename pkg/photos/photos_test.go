package photos

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vialactivo/pkg/shared"
)

func TestExtensionFor(t *testing.T) {
	ext, err := ExtensionFor("image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, ".jpg", ext)

	ext, err = ExtensionFor("IMAGE/PNG; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, ".png", ext)

	_, err = ExtensionFor("application/pdf")
	assert.True(t, shared.IsValidation(err))
}

func TestLocalStoreSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "evidencias")
	s, err := NewLocalStore(dir, "http://localhost:8080/", zap.NewNop())
	require.NoError(t, err)

	url, err := s.Save(context.Background(), "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "http://localhost:8080/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestLocalStoreRejectsUnsupportedType(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "", zap.NewNop())
	require.NoError(t, err)

	_, err = s.Save(context.Background(), "text/plain", strings.NewReader("hello"))
	assert.True(t, shared.IsValidation(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGCSObjectKeyAndURL(t *testing.T) {
	s := &GCSStore{bucket: "vialactivo", prefix: "evidencias"}
	assert.Equal(t, "evidencias/a.jpg", s.objectKey("a.jpg"))
	assert.Equal(t, "https://storage.googleapis.com/vialactivo/evidencias/a.jpg", PublicURL("vialactivo", s.objectKey("a.jpg")))

	s.prefix = ""
	assert.Equal(t, "a.jpg", s.objectKey("a.jpg"))
}

func TestLocalStoreRejectsOversizedPhoto(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "", zap.NewNop())
	require.NoError(t, err)

	_, err = s.Save(context.Background(), "image/jpeg", bytes.NewReader(make([]byte, MaxPhotoBytes+1)))
	assert.True(t, shared.IsValidation(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	url, err := s.Save(context.Background(), "image/jpeg", bytes.NewReader(make([]byte, MaxPhotoBytes)))
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, strings.TrimPrefix(url, UploadsRoute)))
	require.NoError(t, err)
	assert.Equal(t, int64(MaxPhotoBytes), info.Size())
}

func TestLocalStoreRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "", zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Save(ctx, "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, url))
	require.NoError(t, s.Remove(ctx, url))
	require.NoError(t, s.Remove(ctx, "https://elsewhere.example.com/a.png"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
