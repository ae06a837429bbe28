package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/amsterdam/dso-gateway/internal/apierror"
)

type ctxKey int

const (
	ctxKeyGrantedScopes ctxKey = iota
	ctxKeyRequestID
)

// scopeMiddleware reads the bearer token off the request (already
// verified by the external OAuth token validator)
// and attaches the resulting granted ScopeSet to the request context
// for dispatch to build scopes.UserScopes from, once it also knows
// which query parameters are present.
func (s *Server) scopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		granted := s.ScopeProvider.ScopesFromRequest(r)
		ctx := context.WithValue(r.Context(), ctxKeyGrantedScopes, granted)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs one structured line per request at completion.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if s.Log == nil {
			return
		}
		s.Log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// rateLimit enforces golang.org/x/time/rate's token bucket per client
// IP, a no-op when the Server was
// built without rate limiting enabled.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiters == nil {
			next.ServeHTTP(w, r)
			return
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiterFor(host).Allow() {
			writeError(w, r, apierror.New(apierror.KindUnavailable, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
