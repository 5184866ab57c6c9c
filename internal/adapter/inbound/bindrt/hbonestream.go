package bindrt

import (
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// hboneStream adapts one H2 CONNECT exchange (request body as the read
// half, the ResponseWriter as the write half) into a net.Conn so an inner
// HBONE tunnel can be fed back into the same dispatch path an ordinary
// accepted TCP connection takes, as if accepted locally.
type hboneStream struct {
	body    io.ReadCloser
	w       http.ResponseWriter
	flusher http.Flusher
	local   net.Addr
	remote  net.Addr
}

func newHBONEStream(w http.ResponseWriter, r *http.Request, local, remote net.Addr) (*hboneStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("bindrt: response writer does not support flushing, cannot terminate HBONE")
	}
	return &hboneStream{
		body:    r.Body,
		w:       w,
		flusher: flusher,
		local:   local,
		remote:  remote,
	}, nil
}

func (s *hboneStream) Read(p []byte) (int, error) { return s.body.Read(p) }

func (s *hboneStream) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err == nil {
		s.flusher.Flush()
	}
	return n, err
}

func (s *hboneStream) Close() error {
	return s.body.Close()
}

func (s *hboneStream) CloseWrite() error {
	// The H2 CONNECT response stream has no independent half-close; the
	// peer observes completion when the handler returns and the stream
	// ends. Nothing to do on this half beyond letting Close proceed.
	return nil
}

func (s *hboneStream) LocalAddr() net.Addr  { return s.local }
func (s *hboneStream) RemoteAddr() net.Addr { return s.remote }

func (s *hboneStream) SetDeadline(t time.Time) error      { return nil }
func (s *hboneStream) SetReadDeadline(t time.Time) error  { return nil }
func (s *hboneStream) SetWriteDeadline(t time.Time) error { return nil }
