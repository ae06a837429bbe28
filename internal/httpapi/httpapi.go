// Package httpapi is the HTTP dispatch layer: it resolves a request's
// dataset/table off the URL, runs the authorization gate, lowers the
// query string through the filter parser and query planner, applies
// the temporal slice, executes the plan against the store (or forwards
// it to the remote proxy), and streams the result through the
// requested renderer.
package httpapi

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/amsterdam/dso-gateway/internal/authz"
	"github.com/amsterdam/dso-gateway/internal/remote"
	"github.com/amsterdam/dso-gateway/internal/render"
	"github.com/amsterdam/dso-gateway/internal/scopes"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/store"
)

// Server bundles every collaborator one request dispatch needs: the
// schema registry (A), the profile store feeding the scope evaluator
// (B), the authorization gate (G), the SQL store (E/F/I), the
// prefetch cache (I), and the remote proxy (J) for delegated tables.
type Server struct {
	Registry      *sdata.Registry
	Profiles      *scopes.ProfileStore
	ScopeProvider *scopes.Provider
	Gate          *authz.Gate
	DB            *store.DB
	Prefetch      *render.PrefetchCache
	Log           *zap.Logger

	BaseURL         string
	DefaultPageSize int
	MaxPageSize     int

	limiterMu sync.RWMutex
	limiters  map[string]*rate.Limiter
	rlRate    rate.Limit
	rlBurst   int

	remoteMu      sync.Mutex
	remoteClients map[string]*remote.Client
}

// Config carries the construction-time knobs NewServer needs beyond
// the collaborators above.
type Config struct {
	BaseURL           string
	DefaultPageSize   int
	MaxPageSize       int
	RateLimitEnabled  bool
	RequestsPerSecond float64
	RateLimitBurst    int
}

// NewServer wires a Server from its collaborators and Config.
func NewServer(reg *sdata.Registry, profiles *scopes.ProfileStore, log *zap.Logger, db *store.DB, prefetch *render.PrefetchCache, cfg Config) *Server {
	s := &Server{
		Registry:        reg,
		Profiles:        profiles,
		ScopeProvider:   scopes.NewJWTProvider(),
		Gate:            authz.NewGate(log),
		DB:              db,
		Prefetch:        prefetch,
		Log:             log,
		BaseURL:         cfg.BaseURL,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		remoteClients:   make(map[string]*remote.Client),
	}
	if cfg.RateLimitEnabled {
		s.limiters = make(map[string]*rate.Limiter)
		s.rlRate = rate.Limit(cfg.RequestsPerSecond)
		s.rlBurst = cfg.RateLimitBurst
	}
	if s.DefaultPageSize <= 0 {
		s.DefaultPageSize = 20
	}
	return s
}

func (s *Server) remoteClientFor(t *sdata.Table) *remote.Client {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	if c, ok := s.remoteClients[t.ID]; ok {
		return c
	}
	c := remote.New(t)
	s.remoteClients[t.ID] = c
	return c
}

func (s *Server) limiterFor(key string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.rlRate, s.rlBurst)
		s.limiters[key] = l
	}
	return l
}

// defaultQueryTimeout is the per-query deadline requestContext applies
// when the request carries no deadline of its own: a conservative
// upper bound so a runaway query cannot hold a pooled connection open
// indefinitely.
const defaultQueryTimeout = 30 * time.Second
