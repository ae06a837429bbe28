package httpapi

import (
	"net"
	"net/http"

	"github.com/amsterdam/dso-gateway/internal/remote"
)

// dispatchRemote serves a delegated table: a table backed by
// table.Remote never touches the local store — the request is
// rewritten and forwarded to the upstream endpoint instead, and its
// response (or mapped error) is relayed back verbatim.
func (s *Server) dispatchRemote(w http.ResponseWriter, r *http.Request, res *resolved, idPath string) {
	client := s.remoteClientFor(res.table)

	params := remote.CallParams{
		Path:          idPath,
		Query:         r.URL.Query(),
		ClientIP:      clientIP(r),
		ForwardedFor:  r.Header.Get("X-Forwarded-For"),
		CorrelationID: r.Header.Get("X-Correlation-ID"),
		UniqueID:      r.Header.Get("X-Unique-ID"),
		Authorization: r.Header.Get("Authorization"),
	}

	resp, aerr := client.Call(r.Context(), params)
	if aerr != nil {
		writeError(w, r, aerr.WithInstance(r.URL.Path))
		return
	}

	if resp.ContentCRS != "" {
		w.Header().Set("Content-Crs", resp.ContentCRS)
	}
	w.Header().Set("Content-Type", "application/hal+json; charset=utf-8")
	_, _ = w.Write(resp.Body)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
