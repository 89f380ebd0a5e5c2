package delivery

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake mp4 bytes"), 0o644))

	rec := httptest.NewRecorder()
	n, err := Send(rec, path, "clip.mp4")
	require.NoError(t, err)

	assert.Equal(t, int64(14), n)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "14", rec.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="clip.mp4"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "fake mp4 bytes", rec.Body.String())
}

func TestSendMissingFile(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := Send(rec, filepath.Join(t.TempDir(), "missing.mp4"), "clip.mp4")

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.False(t, de.HeadersSent)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

type failingWriter struct {
	*httptest.ResponseRecorder
}

func (f failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestSendWriteFailureAfterHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	_, err := Send(failingWriter{httptest.NewRecorder()}, path, "clip.mp4")
	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.True(t, de.HeadersSent)
}

func TestContentDisposition(t *testing.T) {
	tests := map[string]string{
		"export.mp4":         `attachment; filename="export.mp4"`,
		`my "best" clip.mp4`: `attachment; filename="my _best_ clip.mp4"`,
		"evil\r\nX: y.mp4":   `attachment; filename="evilX: y.mp4"`,
		"":                   `attachment; filename="export.mp4"`,
	}
	for in, want := range tests {
		assert.Equal(t, want, ContentDisposition(in), in)
	}
}
