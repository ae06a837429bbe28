package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/amsterdam/dso-gateway/internal/apierror"
)

// writeError is the single top-level error-mapping boundary: every
// *apierror.Error reaching the HTTP layer is rendered here, and
// nowhere else, into application/problem+json.
func writeError(w http.ResponseWriter, r *http.Request, e *apierror.Error) {
	body := e.ToProblemJSON()
	if body.Instance == "" {
		body.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(e.Kind.Status())
	_ = json.NewEncoder(w).Encode(body)
}
