package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sundew-sh/sundew/internal/interp"
	"github.com/sundew-sh/sundew/internal/models"
	"github.com/sundew-sh/sundew/internal/traps"
)

// maxCapturedBody caps how much of an inbound body is stored on the event.
const maxCapturedBody = 64 * 1024

// captureWriter buffers the handler's response so nothing reaches the wire
// before the event is persisted and the session updated.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header)}
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}

// captureMiddleware is the single wrapper around every trap handler. It
// captures the request into an event before the handler runs, buffers the
// response, feeds the event through the session pipeline, and only then
// emits the buffered response with the persona's headers stamped on.
func (s *Server) captureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		event, bodyBytes := s.buildEvent(r)
		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		buf := newCaptureWriter()
		next.ServeHTTP(buf, r)
		elapsed := time.Since(start)

		if pattern := chi.RouteContext(r.Context()).RoutePattern(); pattern != "" {
			event.MatchedEndpoint = pattern
		}

		ctxErr := r.Context().Err()
		disconnected := errors.Is(ctxErr, context.Canceled)
		switch {
		case disconnected:
			event.ResponseStatus = 0
			event.Notes = appendNote(event.Notes, "client_disconnected")
		case errors.Is(ctxErr, context.DeadlineExceeded):
			event.ResponseStatus = http.StatusRequestTimeout
		case buf.status == 0:
			event.ResponseStatus = http.StatusOK
		default:
			event.ResponseStatus = buf.status
		}

		sess, err := s.tracker.Process(event)
		if err != nil {
			s.logger.Errorw("Failed to persist event", "path", event.Path, "error", err)
			if s.metrics != nil {
				s.metrics.RecordStorageFailure()
			}
			if !disconnected {
				s.stampHeaders(w.Header(), event.SourceIP, elapsed)
				traps.WriteError(w, s.persona, http.StatusServiceUnavailable, "Service unavailable", "")
			}
			return
		}

		if s.metrics != nil {
			s.metrics.RecordRequest(event.TrapType, event.Method, event.ResponseStatus, elapsed)
			s.metrics.RecordClassification(event.Classification, event.Scores.Composite)
			if sess.RequestCount == 1 {
				s.metrics.RecordSessionStarted()
			}
		}

		if disconnected {
			return
		}

		if errors.Is(ctxErr, context.DeadlineExceeded) {
			s.stampHeaders(w.Header(), event.SourceIP, elapsed)
			traps.WriteError(w, s.persona, http.StatusRequestTimeout, "Request timeout", "")
			return
		}

		for name, values := range buf.header {
			for _, v := range values {
				w.Header().Add(name, v)
			}
		}
		s.stampHeaders(w.Header(), event.SourceIP, elapsed)
		w.WriteHeader(buf.status)
		if _, err := w.Write(buf.body.Bytes()); err != nil {
			s.logger.Debugw("Failed to write response", "path", event.Path, "error", err)
		}
	})
}

// buildEvent captures the inbound request. The body read is limited; an
// over-limit body is truncated into the event and flagged.
func (s *Server) buildEvent(r *http.Request) (*models.RequestEvent, []byte) {
	event := &models.RequestEvent{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		UserAgent:   r.Header.Get("User-Agent"),
		TrapType:    s.trapTypeFor(r.URL.Path),
	}

	event.SourceIP, event.SourcePort = splitSource(r.RemoteAddr)

	if len(r.URL.Query()) > 0 {
		event.QueryParams = make(map[string]string, len(r.URL.Query()))
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				event.QueryParams[k] = v[0]
			}
		}
	}

	event.Headers = make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		event.Headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}

	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, _ = io.ReadAll(io.LimitReader(r.Body, maxCapturedBody+1))
		if len(bodyBytes) > maxCapturedBody {
			bodyBytes = bodyBytes[:maxCapturedBody]
			event.Notes = appendNote(event.Notes, "body_truncated")
		}
	}
	event.Body = string(bodyBytes)
	if len(bodyBytes) > 0 && isJSONContentType(event.ContentType) && json.Valid(bodyBytes) {
		event.BodyJSON = json.RawMessage(bodyBytes)
	}

	return event, bodyBytes
}

// isJSONContentType reports whether the declared media type is JSON,
// including +json structured syntaxes, ignoring parameters like charset.
func isJSONContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// trapTypeFor attributes a path to the surface that will serve it.
func (s *Server) trapTypeFor(path string) models.TrapType {
	switch path {
	case "/mcp":
		return models.TrapMCP
	case "/.well-known/ai-plugin.json", "/.well-known/mcp.json",
		"/robots.txt", "/sitemap.xml", "/openapi.json":
		return models.TrapDiscovery
	}
	prefix := strings.TrimSuffix(s.persona.EndpointPrefix, "/")
	if strings.HasPrefix(path, prefix+"/") || path == traps.DocsPath(s.persona) {
		return models.TrapRESTAPI
	}
	return models.TrapUnmatched
}

// stampHeaders applies the persona identity headers to every response.
func (s *Server) stampHeaders(h http.Header, sourceIP string, elapsed time.Duration) {
	h.Set("Server", s.persona.ServerHeader)
	h.Set("X-Response-Time", fmt.Sprintf("%dms", elapsed.Milliseconds()))

	ctx := map[string]string{
		"request_id":       strings.ReplaceAll(uuid.NewString(), "-", ""),
		"response_time_ms": strconv.FormatInt(elapsed.Milliseconds(), 10),
		"source_ip":        sourceIP,
	}
	for name, value := range s.persona.ExtraHeaders {
		h.Set(name, interp.Interpolate(value, ctx))
	}
}

func splitSource(remoteAddr string) (string, int) {
	host, portStr, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func appendNote(notes, tag string) string {
	if notes == "" {
		return tag
	}
	return notes + "," + tag
}
