package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Namespaces under the storage root.
const (
	NamespaceImages = "images"
	NamespaceModels = "models"
)

var (
	// ErrObjectNotFound is returned when a key does not exist in the store.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrTooLarge is returned when a streamed write exceeds its limit.
	ErrTooLarge = errors.New("storage: object exceeds size limit")
)

// FileStore persists uploaded images and materialized models on the local
// filesystem and maps stored keys to public URLs.
type FileStore struct {
	basePath     string
	publicPrefix string
}

// NewFileStore initializes a FileStore rooted at basePath and creates the
// image and model namespaces.
func NewFileStore(basePath, publicPrefix string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	for _, ns := range []string{NamespaceImages, NamespaceModels} {
		if err := os.MkdirAll(filepath.Join(basePath, ns), 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure %s directory: %w", ns, err)
		}
	}
	prefix := "/" + strings.Trim(strings.TrimSpace(publicPrefix), "/")
	if prefix == "/" {
		prefix = ""
	}
	return &FileStore{basePath: basePath, publicPrefix: prefix}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists data at key and returns the canonical key. The file appears
// atomically: readers never observe a partial write.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("storage: empty payload")
	}
	cleanKey, _, err := s.writeFrom(ctx, key, bytes.NewReader(data), 0)
	return cleanKey, err
}

// WriteStream copies r to key, failing with ErrTooLarge once more than limit
// bytes are read. limit <= 0 disables the cap. It returns the canonical key
// and the number of bytes written.
func (s *FileStore) WriteStream(ctx context.Context, key string, r io.Reader, limit int64) (string, int64, error) {
	return s.writeFrom(ctx, key, r, limit)
}

func (s *FileStore) writeFrom(ctx context.Context, key string, r io.Reader, limit int64) (string, int64, error) {
	if s == nil {
		return "", 0, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", 0, err
	}
	fullPath := s.path(cleanKey)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("storage: ensure directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src})
	if err != nil {
		cleanup()
		return "", 0, fmt.Errorf("storage: write file: %w", err)
	}
	if limit > 0 && n > limit {
		cleanup()
		return "", 0, ErrTooLarge
	}
	if n == 0 {
		cleanup()
		return "", 0, errors.New("storage: empty payload")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("storage: close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("storage: chmod file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("storage: commit file: %w", err)
	}
	return cleanKey, n, nil
}

// Read returns the full content stored at key.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(cleanKey))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return data, err
}

// Open returns a handle to the regular file stored at key for serving.
func (s *FileStore) Open(key string) (*os.File, fs.FileInfo, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.path(cleanKey))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, ErrObjectNotFound
	}
	return f, info, nil
}

// Remove deletes key. Missing keys are not an error.
func (s *FileStore) Remove(key string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(s.path(cleanKey)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// PublicURL maps a stored key to its root-relative URL, e.g.
// models/abc.glb -> /files/models/abc.glb.
func (s *FileStore) PublicURL(key string) string {
	return s.publicPrefix + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL reverses PublicURL. It reports false for URLs outside the store.
func (s *FileStore) KeyFromURL(url string) (string, bool) {
	prefix := s.publicPrefix + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key, err := sanitizeKey(strings.TrimPrefix(url, prefix))
	if err != nil {
		return "", false
	}
	return key, true
}

func (s *FileStore) path(cleanKey string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
