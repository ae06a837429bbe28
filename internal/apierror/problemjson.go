package apierror

// ProblemJSON is the wire shape of the DSO error body.
type ProblemJSON struct {
	Type              string         `json:"type"`
	Title             string         `json:"title"`
	Status            int            `json:"status"`
	Detail            string         `json:"detail,omitempty"`
	Instance          string         `json:"instance,omitempty"`
	InvalidParams     []InvalidParam `json:"invalid-params,omitempty"`
	XValidationErrors []string       `json:"x-validation-errors,omitempty"`
	XRawResponse      string         `json:"x-raw-response,omitempty"`
}

// ToProblemJSON renders e into the wire body; internal/httpapi is the
// only caller, at the single top-level error-mapping boundary.
func (e *Error) ToProblemJSON() ProblemJSON {
	return ProblemJSON{
		Type:              e.URN(),
		Title:             e.Title(),
		Status:            e.Kind.Status(),
		Detail:            e.Detail,
		Instance:          e.Instance,
		InvalidParams:     e.InvalidParams,
		XValidationErrors: e.ValidationErrs,
		XRawResponse:      e.RawUpstreamBody,
	}
}
