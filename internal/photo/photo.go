// Package photo stores visitor photos and hands back a URL for the record.
package photo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	dErrors "gatehouse/pkg/domain-errors"
)

// MaxSize is the largest accepted photo.
const MaxSize = 5 << 20

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Store persists an image and returns the URL it is served from.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

// FSStore writes photos to a local directory. Files are named by a random
// UUID; the directory is expected to be served under BaseURL.
type FSStore struct {
	dir     string
	baseURL string
}

func NewFSStore(dir, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create photo dir: %w", err)
	}
	return &FSStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put validates and writes data. The content type is sniffed, never trusted
// from the client.
func (s *FSStore) Put(ctx context.Context, data []byte) (string, error) {
	ext, err := Validate(data)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o640); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store photo")
	}
	return s.baseURL + "/" + name, nil
}

// Delete removes a photo previously returned by Put. Unknown or foreign URLs
// are rejected; an already missing file is not an error.
func (s *FSStore) Delete(_ context.Context, url string) error {
	name, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || name == "" || name != filepath.Base(name) {
		return dErrors.New(dErrors.CodeInvalidInput, "not a stored photo url")
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete photo")
	}
	return nil
}

// Dir is where photos are written; the HTTP layer serves it.
func (s *FSStore) Dir() string {
	return s.dir
}

// Validate checks size and image type and returns the file extension.
func Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "photo is empty")
	}
	if len(data) > MaxSize {
		return "", dErrors.New(dErrors.CodeValidation, "photo exceeds 5 MiB")
	}
	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return "", dErrors.New(dErrors.CodeValidation, "photo must be a JPEG, PNG or WebP image")
	}
	return ext, nil
}
