package service

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
	"github.com/noah-isme/uni-contrib-api/pkg/media"
)

// memFiles is an in-memory file store.
type memFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[string][]byte{}}
}

func (m *memFiles) Save(filename string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.files[filename] = append([]byte(nil), data...)
	return filename, nil
}

func (m *memFiles) Delete(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filename)
	return nil
}

func (m *memFiles) Open(filename string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[filename]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func newTestUploader(files *memFiles) *Uploader {
	inspector := media.NewInspector([]string{"application/pdf", "image/png", "image/jpeg"}, 1<<20)
	return NewUploader(files, inspector, 64, nil)
}

func TestUploaderStoresImageWithThumbnail(t *testing.T) {
	files := newMemFiles()
	file, err := newTestUploader(files).Store("contributions/e1", models.Upload{Name: "cover.png", Data: pngBytes(t, 200, 100)})
	require.NoError(t, err)

	assert.Equal(t, "image/png", file.MIMEType)
	assert.True(t, strings.HasPrefix(file.Path, "contributions/e1/"))
	require.NotEmpty(t, file.ThumbnailPath)
	assert.True(t, strings.HasPrefix(file.ThumbnailPath, "contributions/e1/thumbs/"))
	assert.Len(t, files.files, 2)
}

func TestUploaderRejectsDisallowedType(t *testing.T) {
	_, err := newTestUploader(newMemFiles()).Store("x", models.Upload{Name: "a.txt", Data: []byte("plain text")})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnsupportedMedia.Code))
}

func TestUploaderStoreAllRollsBack(t *testing.T) {
	files := newMemFiles()
	_, err := newTestUploader(files).StoreAll("x", []models.Upload{
		{Name: "a.pdf", Data: pdfBytes},
		{Name: "b.txt", Data: []byte("plain text")},
	})
	require.Error(t, err)
	assert.Empty(t, files.files)
}
