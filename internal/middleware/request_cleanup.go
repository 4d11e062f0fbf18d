package middleware

import (
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// maxDrainBytes caps what is read from an unconsumed body; past it the
// connection is not worth keeping and the body is only closed.
const maxDrainBytes = 256 << 10

// DrainAndCloseRequest drains (up to maxDrainBytes) and closes the request body
// once the handler is done, so the keep-alive connection can serve the next request.
func DrainAndCloseRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Body == nil || r.Body == http.NoBody {
				return
			}
			drained, err := io.CopyN(io.Discard, r.Body, maxDrainBytes)
			if err == nil && drained == maxDrainBytes {
				log.Tracef("request body of %s %s left undrained past %d bytes", r.Method, r.URL.Path, drained)
			}
			if err := r.Body.Close(); err != nil {
				log.Tracef("close request body: %s", err)
			}
		})
	}
}
