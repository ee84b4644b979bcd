package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgcontext "github.com/scrutineering/scrutineer/internal/pkg/context"
)

// ResponseMeta rides along with every wrapped API response.
type ResponseMeta struct {
	RequestID string `json:"request_id"`
	LatencyMS int64  `json:"latency_ms"`
	Timestamp string `json:"timestamp"`
}

// WrappedResponse is the envelope for /v1 JSON responses: the handler's
// payload under "data", request metadata under "meta".
type WrappedResponse struct {
	Data interface{}  `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// bufferingWriter holds the handler's output so the middleware can decide
// whether to envelope it.
type bufferingWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
	wrote  bool
}

func (bw *bufferingWriter) WriteHeader(code int) {
	bw.status = code
}

func (bw *bufferingWriter) Write(b []byte) (int, error) {
	bw.wrote = true
	return bw.body.Write(b)
}

// wrapPath reports whether responses on this path get the data/meta
// envelope. Version is served bare so probes can parse it directly.
func wrapPath(path string) bool {
	if !strings.HasPrefix(path, "/v1") {
		return false
	}
	return path != "/v1/version"
}

// ResponseWrapperMiddleware envelopes successful JSON responses on /v1
// routes in the data/meta structure. Errors, non-JSON bodies, and empty
// bodies pass through untouched.
func ResponseWrapperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !wrapPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// Reuse the ID minted by the logging middleware so log lines and
		// response metadata correlate.
		requestID := pkgcontext.RequestID(r.Context())
		if requestID == "" {
			requestID = GenerateRequestID()
		}

		start := time.Now()
		bw := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(bw, r)
		latencyMS := time.Since(start).Milliseconds()

		w.Header().Set("X-Request-ID", requestID)

		var data interface{}
		if !bw.wrote || bw.status >= 400 || json.Unmarshal(bw.body.Bytes(), &data) != nil {
			w.WriteHeader(bw.status)
			_, _ = w.Write(bw.body.Bytes())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(bw.status)
		_ = json.NewEncoder(w).Encode(WrappedResponse{
			Data: data,
			Meta: ResponseMeta{
				RequestID: requestID,
				LatencyMS: latencyMS,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		})
	})
}

// GenerateRequestID returns a short ID for correlating one request's log
// lines and response metadata.
func GenerateRequestID() string {
	return uuid.NewString()[:8]
}
