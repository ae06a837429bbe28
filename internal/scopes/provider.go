package scopes

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// claims is the shape this reference adapter expects a verified bearer
// token to carry: a space-separated scope string, matching the
// Amsterdam Schema auth convention ("DATASET/SCOPE FP/MDW ...").
type claims struct {
	jwt.RegisteredClaims
	Scopes string `json:"scopes"`
}

// Provider turns the incoming request's Authorization header into a
// ScopeSet. Signature verification is the external OAuth token
// validator's job: by the time a request
// reaches this gateway the upstream middleware has already rejected
// anything with a bad signature, so Provider only needs to read the
// claims back out.
type Provider struct{}

// NewJWTProvider builds the default Provider.
func NewJWTProvider() *Provider { return &Provider{} }

// ScopesFromRequest extracts the granted ScopeSet from r's bearer
// token. A missing or unparseable token yields an empty ScopeSet
// (anonymous access), never an error — authentication failure is the
// external validator's concern, not this gateway's.
func (p *Provider) ScopesFromRequest(r *http.Request) sdata.ScopeSet {
	tok := bearerToken(r.Header.Get("Authorization"))
	if tok == "" {
		return sdata.NewScopeSet()
	}

	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &c); err != nil {
		return sdata.NewScopeSet()
	}

	var out []sdata.Scope
	for _, s := range strings.Fields(c.Scopes) {
		out = append(out, sdata.Scope(s))
	}
	return sdata.NewScopeSet(out...)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
