// Package delivery streams a finished artifact to the HTTP caller.
package delivery

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

const contentType = "video/mp4"

// DeliveryError reports an incomplete transfer. When HeadersSent is true the
// response status is already committed and cannot become an error response.
type DeliveryError struct {
	HeadersSent bool
	Written     int64
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery incomplete after %d bytes: %v", e.Written, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ErrShortWrite is wrapped when fewer bytes were sent than the file holds.
var ErrShortWrite = errors.New("short write")

// Send writes the file at path as an attachment named filename. It returns
// the number of bytes written.
func Send(w http.ResponseWriter, path, filename string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &DeliveryError{Err: fmt.Errorf("open output: %w", err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, &DeliveryError{Err: fmt.Errorf("stat output: %w", err)}
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	h.Set("Content-Disposition", ContentDisposition(filename))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, f)
	if err != nil {
		return n, &DeliveryError{HeadersSent: true, Written: n, Err: err}
	}
	if n != info.Size() {
		return n, &DeliveryError{HeadersSent: true, Written: n, Err: ErrShortWrite}
	}
	return n, nil
}

// ContentDisposition builds an attachment header value, stripping characters
// that would break out of the quoted filename.
func ContentDisposition(filename string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '\\':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, filename)
	if strings.TrimSpace(clean) == "" {
		clean = "export.mp4"
	}
	return `attachment; filename="` + clean + `"`
}
