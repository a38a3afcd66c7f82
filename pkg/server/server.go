// Copyright 2023 The pubmint Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server assembles the HTTP surface: the public token exchange
// endpoint and the bearer-guarded management API for registry records.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pubmint/pubmint/pkg/config"
	"github.com/pubmint/pubmint/pkg/exchange"
	"github.com/pubmint/pubmint/pkg/registry"
	"github.com/rs/cors"
)

type Server struct {
	exchanger  *exchange.Service
	store      registry.Store
	trust      *config.Config
	adminToken string
	limiter    *rateLimiter
}

// Options configures the HTTP surface. The zero value serves the exchange
// endpoint unlimited and leaves the management API disabled.
type Options struct {
	// AdminToken guards /v1/admin. Empty disables the management API.
	AdminToken string
	// RateLimit is the number of exchange requests one client may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

func New(exchanger *exchange.Service, store registry.Store, trust *config.Config, opts Options) (*Server, error) {
	var limiter *rateLimiter
	if opts.RateLimit > 0 {
		window := opts.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		var err error
		limiter, err = newRateLimiter(opts.RateLimit, window)
		if err != nil {
			return nil, err
		}
	}
	return &Server{
		exchanger:  exchanger,
		store:      store,
		trust:      trust,
		adminToken: opts.AdminToken,
		limiter:    limiter,
	}, nil
}

// Handler assembles the router, instrumented for latency and request
// counts. Identity verification reads the trust configuration from the
// request context, so every request is infused with the startup snapshot.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(s.withTrustConfig)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(cors.Default().Handler, s.limiter.handler).Post("/token", s.handleExchange)

		v1.Route("/admin", func(ar chi.Router) {
			ar.Use(s.adminAuth)
			ar.Post("/publishers", s.createPublisher)
			ar.Get("/publishers", s.listPublishers)
			ar.Get("/publishers/{id}", s.getPublisher)
			ar.Delete("/publishers/{id}", s.deletePublisher)
			ar.Post("/projects", s.createProject)
			ar.Get("/projects", s.listProjects)
		})
	})

	var handler http.Handler = r
	handler = promhttp.InstrumentHandlerDuration(MetricLatency, handler)
	handler = promhttp.InstrumentHandlerCounter(RequestsCount, handler)
	return handler
}

func (s *Server) withTrustConfig(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(config.With(r.Context(), s.trust)))
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// readyz additionally checks the registry store, so deployments stop
// routing to an instance that lost its database.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: storeUnavailable})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
