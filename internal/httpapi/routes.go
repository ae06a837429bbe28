package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// CORSConfig carries the cors.Options knobs internal/config exposes.
type CORSConfig struct {
	AllowedOrigins []string
	Debug          bool
}

// Router builds the gateway's chi.Mux: health check, per-dataset REST
// resources, and the vector-tile endpoints.
func (s *Server) Router(corsCfg CORSConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.scopeMiddleware)
	r.Use(s.rateLimit)

	c := cors.New(cors.Options{
		AllowedOrigins: corsCfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Accept", "Accept-Crs", "Content-Crs"},
		Debug:          corsCfg.Debug,
	})
	r.Use(c.Handler)

	r.Get("/health", s.Health)

	r.Route("/v1/mvt/{dataset}", func(rt chi.Router) {
		rt.Get("/tilejson.json", s.TileJSON)
		rt.Get("/{table}/{z}/{x}/{y}.pbf", s.Tile)
	})

	r.Route("/v1/{dataset}/{table}", func(rt chi.Router) {
		rt.Get("/", s.ListTable)
		rt.Get("/{id}", s.GetRow)
		rt.Get("/{id}/", s.GetRow)
	})

	return r
}

// Health reports process liveness; it does not probe the database, so a
// slow backend never flips a load balancer's health check.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
