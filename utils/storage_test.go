package utils_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/we-api/utils"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestLocalImageStoreSave(t *testing.T) {
	dir := t.TempDir()
	store := &utils.LocalImageStore{Dir: dir, BaseURL: "/static/uploads", MaxBytes: 1 << 20}
	data := pngBytes(t)

	url, err := store.Save(context.Background(), bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/static/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	rel := strings.TrimPrefix(url, "/static/uploads/")
	got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLocalImageStoreAbsoluteBaseURL(t *testing.T) {
	store := &utils.LocalImageStore{Dir: t.TempDir(), BaseURL: "https://cdn.example/uploads/", MaxBytes: 1 << 20}
	data := pngBytes(t)

	url, err := store.Save(context.Background(), bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Regexp(t, `^https://cdn\.example/uploads/\d{8}/[^/]+\.png$`, url)
}

func TestLocalImageStoreRejects(t *testing.T) {
	store := &utils.LocalImageStore{Dir: t.TempDir(), BaseURL: "/static/uploads", MaxBytes: 16}

	_, err := store.Save(context.Background(), strings.NewReader("just some text"), 14)
	assert.ErrorIs(t, err, utils.ErrUnsupportedImage)

	data := pngBytes(t)
	_, err = store.Save(context.Background(), bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, utils.ErrImageTooLarge)

	// size misreported as small: the copy limit still catches it
	_, err = store.Save(context.Background(), bytes.NewReader(data), 1)
	assert.ErrorIs(t, err, utils.ErrImageTooLarge)
}
