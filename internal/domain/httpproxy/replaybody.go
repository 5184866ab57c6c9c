package httpproxy

import (
	"bytes"
	"errors"
	"io"
)

// replayBodyCap is the byte cap a request body is buffered to for retry
// replay and request-mirror cloning once a size cap is hit.
const replayBodyCap = 1 << 20 // 1 MiB

// ErrBodyCapped is returned by ReplayBody.Capture when the request body
// exceeds replayBodyCap; the caller must treat the route as non-retriable
// for this request rather than silently truncating it.
var ErrBodyCapped = errors.New("httpproxy: request body exceeds replay cap")

// ReplayBody buffers a request body up to a byte cap so a retried request
// can replay it, tracking whether the original body was fully captured.
type ReplayBody struct {
	data    []byte
	capped  bool
}

// CaptureReplayBody reads body fully (or up to cap+1 bytes) and returns a
// ReplayBody plus a fresh reader for the caller to install as the first
// attempt's request body.
func CaptureReplayBody(body io.ReadCloser) (*ReplayBody, io.ReadCloser, error) {
	if body == nil {
		return &ReplayBody{}, nil, nil
	}
	defer body.Close()

	buf, err := io.ReadAll(io.LimitReader(body, replayBodyCap+1))
	if err != nil {
		return nil, nil, err
	}

	rb := &ReplayBody{}
	if len(buf) > replayBodyCap {
		rb.capped = true
		rb.data = buf[:replayBodyCap]
	} else {
		rb.data = buf
	}

	return rb, rb.Reader(), nil
}

// IsCapped reports whether the captured body was truncated (is_capped).
func (b *ReplayBody) IsCapped() bool { return b.capped }

// Reader returns a fresh reader over the captured bytes for one replay
// attempt.
func (b *ReplayBody) Reader() io.ReadCloser {
	if b == nil {
		return nil
	}
	return io.NopCloser(bytes.NewReader(b.data))
}
