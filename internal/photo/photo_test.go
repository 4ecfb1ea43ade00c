package photo

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gatehouse/pkg/domain-errors"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		ext  string
		ok   bool
	}{
		{"png", pngHeader, ".png", true},
		{"jpeg", jpegHeader, ".jpg", true},
		{"text", []byte("hello there"), "", false},
		{"empty", nil, "", false},
		{"too large", append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, MaxSize)...), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := Validate(tt.data)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestFSStorePut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(filepath.Join(dir, "photos"), "/photos/")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), pngHeader)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/photos/"))
	require.True(t, strings.HasSuffix(url, ".png"))

	written, err := os.ReadFile(filepath.Join(s.Dir(), strings.TrimPrefix(url, "/photos/")))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, written)
}

func TestFSStoreDelete(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "/photos")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Put(ctx, pngHeader)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, url))
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, s.Delete(ctx, url), "already removed")

	for _, bad := range []string{"/elsewhere/x.png", "/photos/", "/photos/../secret.png"} {
		err := s.Delete(ctx, bad)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), bad)
	}
}
