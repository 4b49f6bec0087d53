// Copyright 2025 ChatBridge
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

// Package gateway exposes session lifecycle management over HTTP:
// pairing streams, pairing codes, logout/close, and status, plus
// health and Prometheus metrics endpoints.
package gateway

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"chatbridge/platform/pairing"
	"chatbridge/platform/session"
	"chatbridge/platform/shared/logger"
	"chatbridge/platform/tenantstore"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Options configures a gateway server.
type Options struct {
	Registry *session.Registry
	Pairing  *pairing.Coordinator
	Tenants  tenantstore.Store

	// JWTSecret enables Bearer token authentication on the API routes.
	// Empty disables authentication (local development).
	JWTSecret string

	// AllowedOrigins configures CORS. Empty allows all origins.
	AllowedOrigins []string
}

// Server is the HTTP surface over the session registry.
type Server struct {
	registry  *session.Registry
	pairing   *pairing.Coordinator
	tenants   tenantstore.Store
	jwtSecret string
	origins   []string
	log       *logger.Logger
}

// NewServer creates a gateway server.
func NewServer(opts Options) *Server {
	return &Server{
		registry:  opts.Registry,
		pairing:   opts.Pairing,
		tenants:   opts.Tenants,
		jwtSecret: opts.JWTSecret,
		origins:   opts.AllowedOrigins,
		log:       logger.New("gateway"),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(requestIDMiddleware, s.loggingMiddleware, s.authMiddleware)

	api.HandleFunc("/instances/{id}/connect", s.connectHandler).Methods("POST")
	api.HandleFunc("/instances/{id}/status", s.statusHandler).Methods("GET")
	api.HandleFunc("/instances/{id}/qr", s.qrStreamHandler).Methods("GET")
	api.HandleFunc("/instances/{id}/pairing-code", s.pairingCodeHandler).Methods("POST")
	api.HandleFunc("/instances/{id}/logout", s.logoutHandler).Methods("POST")
	api.HandleFunc("/instances/{id}/close", s.closeHandler).Methods("POST")

	return r
}

// Handler wraps the router with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(s.Router())
}
