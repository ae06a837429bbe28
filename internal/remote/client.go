// Package remote implements the remote proxy: datasets whose schema
// names an upstream endpoint are served by rewriting the incoming
// request and forwarding it with go-resty, rather than querying the
// local store.
package remote

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// socketTimeout is the hard upstream deadline; there are no retries on
// top of it.
const socketTimeout = 60 * time.Second

// Response is the upstream payload, relayed to the client unchanged.
type Response struct {
	ContentCRS string
	Body       []byte
}

// Client calls one remote-backed table's upstream endpoint.
type Client struct {
	rc          *resty.Client
	endpointURL string
	table       *sdata.Table
	forwardAuth bool
	halCentral  bool
}

// New builds a Client for the given table's RemoteDescriptor. TLS verification is always on; resty.New()'s default
// transport already requires a valid certificate, so no
// InsecureSkipVerify knob is ever exposed here.
func New(table *sdata.Table) *Client {
	d := table.Remote
	rc := resty.New().
		SetTimeout(socketTimeout).
		SetRetryCount(0)
	return &Client{
		rc:          rc,
		endpointURL: d.BaseURL,
		table:       table,
		forwardAuth: d.ForwardAuth,
		halCentral:  d.HALCentral,
	}
}

// CallParams carries everything Call needs from the inbound HTTP
// request without this package importing net/http directly.
type CallParams struct {
	Path            string // path segment appended after {tableId} substitution, may be empty
	Query           url.Values
	ClientIP        string
	ForwardedFor    string // existing X-Forwarded-For, if any
	CorrelationID   string // existing X-Correlation-ID, if any
	UniqueID        string // X-Unique-ID, used to derive a correlation id when none was sent
	Authorization   string // only forwarded when forwardAuth is set
}

// Call rewrites and dispatches the request, returning the upstream
// response body or an *apierror.Error mapped from the upstream
// status.
func (c *Client) Call(ctx context.Context, p CallParams) (*Response, *apierror.Error) {
	remoteURL, qerr := c.rewriteURL(p.Path, p.Query)
	if qerr != nil {
		return nil, qerr
	}

	req := c.rc.R().SetContext(ctx)
	for k, v := range c.headers(p) {
		req.SetHeader(k, v)
	}

	resp, err := req.Get(remoteURL)
	if err != nil {
		if strings.Contains(err.Error(), "timeout") {
			return nil, apierror.New(apierror.KindTimeout, "remote endpoint did not respond in time")
		}
		return nil, apierror.New(apierror.KindUnavailable, "unable to reach remote endpoint: "+err.Error())
	}

	return c.handleResponse(resp)
}

func (c *Client) headers(p CallParams) map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if c.halCentral {
		h["Accept"] = "application/hal+json"
	}

	forward := p.ClientIP
	if p.ForwardedFor != "" {
		forward = p.ForwardedFor + " " + p.ClientIP
	}
	h["X-Forwarded-For"] = forward

	correlation := p.CorrelationID
	if correlation == "" && p.UniqueID != "" {
		correlation = correlationFromUniqueID(p.UniqueID)
	}
	if correlation != "" {
		h["X-Correlation-ID"] = correlation
	}

	if c.forwardAuth && p.Authorization != "" {
		h["Authorization"] = p.Authorization
	}
	return h
}

// correlationFromUniqueID derives an X-Correlation-ID from an upstream
// X-Unique-ID header: first 14 characters plus the trailing component,
// never exceeding 40 characters.
func correlationFromUniqueID(uniqueID string) string {
	const maxLen = 40
	const headLen = 14
	if len(uniqueID) <= headLen {
		return truncate(uniqueID, maxLen)
	}
	head := uniqueID[:headLen]
	tail := uniqueID
	if idx := strings.LastIndexByte(uniqueID, ':'); idx >= 0 && idx+1 < len(uniqueID) {
		tail = uniqueID[idx+1:]
	}
	return truncate(head+tail, maxLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (c *Client) rewriteURL(path string, query url.Values) (string, *apierror.Error) {
	base := strings.ReplaceAll(c.endpointURL, "{tableId}", c.table.ID)
	if path != "" {
		base = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	}

	remote, err := rewriteParams(query, c.halCentral)
	if err != nil {
		return "", err
	}
	if len(remote) == 0 {
		return base, nil
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + remote.Encode(), nil
}

// nonFilterRenames are the incoming query keys the upstream expects
// under a different name.
var nonFilterRenames = map[string]string{
	"_expand":      "expand",
	"_expandScope": "expand",
	"_fields":      "fields",
	"_pageSize":    "pageSize",
	"fields":       "fields",
	"page_size":    "pageSize",
}

// rewriteParams translates reserved query parameters and passes
// through identifier/scalar filters whose lookup is empty or "exact";
// anything else is rejected with 400 before dispatch.
func rewriteParams(in url.Values, haalCentraal bool) (url.Values, *apierror.Error) {
	out := url.Values{}
	for key, vals := range in {
		if key == "_format" || key == "format" {
			continue
		}
		if renamed, ok := nonFilterRenames[key]; ok {
			out[renamed] = vals
			continue
		}

		field, lookup := splitLookup(key)
		if lookup != "" && lookup != "exact" {
			return nil, apierror.Newf(apierror.KindInvalidFilterSyntax,
				"filter operator %q is not supported by this remote endpoint", lookup)
		}
		out[field] = vals
	}
	return out, nil
}

func splitLookup(key string) (field, lookup string) {
	if i := strings.IndexByte(key, '['); i >= 0 && strings.HasSuffix(key, "]") {
		return key[:i], key[i+1 : len(key)-1]
	}
	return key, ""
}

func (c *Client) handleResponse(resp *resty.Response) (*Response, *apierror.Error) {
	status := resp.StatusCode()
	contentType := resp.Header().Get("Content-Type")
	body := resp.Body()

	switch {
	case status == 200:
		return &Response{ContentCRS: resp.Header().Get("Content-Crs"), Body: body}, nil

	case status == 400:
		if strings.HasPrefix(contentType, "application/problem+json") {
			return nil, apierror.New(apierror.KindInvalidFilterSyntax, "parse_error").WithRawUpstream(body)
		}
		return nil, apierror.New(apierror.KindUpstream, "remote endpoint rejected the request").WithRawUpstream(body)

	case status == 401 || status == 403:
		// Never surfaced as 401: a bare 401 requires a WWW-Authenticate
		// header this gateway cannot manufacture on the remote's behalf.
		if c.forwardAuth && is3xxOAuthRedirect(status, "") {
			return nil, apierror.New(apierror.KindAccessDenied, "Invalid token")
		}
		return nil, apierror.New(apierror.KindAccessDenied, "remote endpoint denied access")

	case status == 404:
		if strings.HasPrefix(contentType, "application/problem+json") {
			return nil, apierror.New(apierror.KindNotFound, "not found").WithRawUpstream(body)
		}
		return nil, apierror.New(apierror.KindNotFound, "not found")

	case status >= 300 && status < 400:
		if c.forwardAuth && is3xxOAuthRedirect(status, resp.Header().Get("Location")) {
			return nil, apierror.New(apierror.KindAccessDenied, "Invalid token")
		}
		return nil, apierror.New(apierror.KindUpstream, "unexpected redirect from remote endpoint")

	default:
		return nil, apierror.New(apierror.KindUpstream, "unexpected status from remote endpoint").WithRawUpstream(body)
	}
}

func is3xxOAuthRedirect(status int, location string) bool {
	return status >= 300 && status < 400 && strings.Contains(location, "/oauth/authorize")
}
