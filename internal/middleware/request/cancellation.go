package request

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/smartpcr/pass-cancel/internal/errors"
)

// WithCancellation links each request to its connection's liveness and
// converts cancellation-caused aborts into the client-closed-request status.
//
// The middleware registers the request's context in reg (when non-nil) so
// handlers that resolve cancellation ambiently can find it, then runs the
// next handler in its own goroutine and races it against the request
// context:
//
//   - If the handler finishes first and wrote nothing despite a cancelled
//     context, the middleware writes the 499 outcome on its behalf.
//   - If the client disconnects first, the middleware writes 499 and then
//     abandons the response writer, so a handler that keeps running (the
//     variant that never consults its context does) cannot produce a second
//     response. Exactly one response is ever written.
//
// A context cancelled by deadline rather than disconnect is not raced: the
// handler's own wait unwinds through it and reports the timeout itself.
func WithCancellation(reg *Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if reg != nil {
				id := ID(r)
				reg.Register(id, ctx)
				defer reg.Deregister(id)
			}

			sw := newSafeWriter(w)

			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(sw, r)
			}()

			select {
			case <-done:
				convertUnwrittenAbort(sw, ctx)
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					// Deadline, not disconnect: the handler observes the
					// same context and reports the timeout itself.
					<-done
					convertUnwrittenAbort(sw, ctx)
					return
				}

				// Client gone. Claim the response before the handler can,
				// then return without waiting for it to unwind; late writes
				// land in the abandoned writer and are dropped. Cancellation
				// metrics stay with the handler, which always unwinds through
				// the same context and records the cause exactly once.
				writeClientClosed(sw, ctx.Err())
				sw.Abandon()
			}
		})
	}
}

// convertUnwrittenAbort writes the outcome for a handler that returned
// without producing a response because its context was cancelled.
func convertUnwrittenAbort(sw *safeWriter, ctx context.Context) {
	if ctx.Err() == nil || sw.Written() {
		return
	}
	writeClientClosed(sw, ctx.Err())
}

func writeClientClosed(w http.ResponseWriter, cause error) {
	err := errors.FromContext(cause)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.StatusCode(err))
	json.NewEncoder(w).Encode(errors.ToErrorResponse(err))
}

// safeWriter serializes access to the underlying http.ResponseWriter and
// supports abandoning it, after which writes are silently dropped. Headers
// are buffered and flushed to the destination on the first WriteHeader, the
// same way http.TimeoutHandler arbitrates between two writers.
type safeWriter struct {
	mu        sync.Mutex
	dst       http.ResponseWriter
	header    http.Header
	status    int
	size      int
	written   bool
	abandoned bool
}

func newSafeWriter(w http.ResponseWriter) *safeWriter {
	return &safeWriter{
		dst:    w,
		header: make(http.Header),
		status: http.StatusOK,
	}
}

func (w *safeWriter) Header() http.Header {
	return w.header
}

func (w *safeWriter) WriteHeader(statusCode int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.written || w.abandoned {
		return
	}
	w.written = true
	w.status = statusCode

	dst := w.dst.Header()
	for k, v := range w.header {
		dst[k] = v
	}
	w.dst.WriteHeader(statusCode)
}

func (w *safeWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.abandoned && !w.written {
		return 0, http.ErrHandlerTimeout
	}
	if !w.written {
		w.written = true
		dst := w.dst.Header()
		for k, v := range w.header {
			dst[k] = v
		}
		w.dst.WriteHeader(w.status)
	}
	if w.abandoned {
		return 0, http.ErrHandlerTimeout
	}
	n, err := w.dst.Write(b)
	w.size += n
	return n, err
}

// Abandon detaches the writer from its destination. Subsequent writes are
// dropped. Idempotent.
func (w *safeWriter) Abandon() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.abandoned = true
}

// Written reports whether a response has been started.
func (w *safeWriter) Written() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// StatusCode returns the status of the response that was written, or 200 if
// none was.
func (w *safeWriter) StatusCode() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}
