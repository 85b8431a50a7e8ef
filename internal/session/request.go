package session

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// Request is one inbound HTTP request addressed to a session. The
// handler goroutine parks on Done while the control loop (or a job it
// registered) produces the response; exactly one Send call wins, any
// later one is a no-op. This is what lets the engine answer a request
// long after the routing decision, without ever blocking the loop.
type Request struct {
	Method string
	Path   string

	w    http.ResponseWriter
	once sync.Once
	done chan struct{}
}

// NewRequest wraps an HTTP exchange for deferred completion.
func NewRequest(method, path string, w http.ResponseWriter) *Request {
	return &Request{
		Method: method,
		Path:   path,
		w:      w,
		done:   make(chan struct{}),
	}
}

// Done is closed once the response has been written.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// SendText answers with a plain-text body.
func (r *Request) SendText(status int, body string) {
	r.send(status, "text/plain; charset=utf-8", []byte(body))
}

// SendData answers with raw bytes of the given content type.
func (r *Request) SendData(status int, contentType string, data []byte) {
	r.send(status, contentType, data)
}

// SendHTML renders a document writer into the response. A failing
// writer turns into a 500; the document is buffered first so a partial
// render never reaches the client.
func (r *Request) SendHTML(status int, write func(w io.Writer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		r.send(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("ERROR: Internal error"))
		return
	}
	r.send(status, "text/html; charset=utf-8", buf.Bytes())
}

func (r *Request) send(status int, contentType string, data []byte) {
	r.once.Do(func() {
		header := r.w.Header()
		header.Set("Content-Type", contentType)
		header.Set("Content-Length", strconv.Itoa(len(data)))
		header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		r.w.WriteHeader(status)
		_, _ = r.w.Write(data)
		close(r.done)
	})
}
