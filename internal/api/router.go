// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api wires the REST session-CRUD surface and the realtime
// WebSocket upgrade endpoint behind the teacher's middleware chain
// (Logging, Recovery, CORS, API-version header) and gorilla/mux router.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wingedpig/collabhub/internal/admission"
	"github.com/wingedpig/collabhub/internal/api/handlers"
	"github.com/wingedpig/collabhub/internal/api/middleware"
	"github.com/wingedpig/collabhub/internal/api/version"
	"github.com/wingedpig/collabhub/internal/auth"
	"github.com/wingedpig/collabhub/internal/execution"
	"github.com/wingedpig/collabhub/internal/realtime"
	"github.com/wingedpig/collabhub/internal/session"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host string
	Port int
}

// Dependencies holds all dependencies for API handlers.
type Dependencies struct {
	Registry   *session.Registry
	Admission  *admission.Controller
	Verifier   *auth.Verifier
	Hub        *realtime.Hub
	Dispatcher *execution.Dispatcher
}

// NewRouter creates the collabhub API router: REST session CRUD, the
// realtime WebSocket upgrade, and the sandbox runtime listing, all under
// the teacher's middleware chain.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)
	r.Use(version.Middleware)

	r.HandleFunc("/ws", deps.Hub.ServeWS).Methods("GET")

	sessionHandler := handlers.NewSessionHandler(deps.Registry, deps.Admission, deps.Verifier)
	r.HandleFunc("/sessions/create", sessionHandler.Create).Methods("POST")
	r.HandleFunc("/sessions/join", sessionHandler.Join).Methods("POST")
	r.HandleFunc("/sessions", sessionHandler.List).Methods("GET")
	r.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET")
	r.HandleFunc("/sessions/{id}/regenerate-key", sessionHandler.RegenerateKey).Methods("POST")
	r.HandleFunc("/sessions/{id}", sessionHandler.Delete).Methods("DELETE")

	api := r.PathPrefix("/api/v1").Subrouter()
	if deps.Dispatcher != nil {
		sandboxHandler := handlers.NewSandboxHandler(deps.Dispatcher)
		api.HandleFunc("/sandbox/runtimes", sandboxHandler.Runtimes).Methods("GET")
	}

	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return r
}

// Server represents the API server.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	return &Server{
		router: NewRouter(deps),
		cfg:    cfg,
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts the server on cfg.Host:cfg.Port.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	log.Printf("API server listening on http://%s", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Println("Shutting down API server...")

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	return s.server.Shutdown(shutdownCtx)
}

// ProbeAndServe binds to cfg.Port, stepping +1 up to probeStep times if
// the port is busy (spec.md §6), then serves in the background. Returns
// the bound Server and port, or an error if no port in the probe range
// was available (spec.md §6: exit code 1).
func ProbeAndServe(cfg ServerConfig, probeStep int, deps Dependencies) (*Server, int, error) {
	basePort := cfg.Port
	for offset := 0; offset <= probeStep; offset++ {
		port := basePort + offset
		addr := cfg.Host + ":" + strconv.Itoa(port)
		ln, err := netListen(addr)
		if err != nil {
			continue
		}
		srv := NewServer(ServerConfig{Host: cfg.Host, Port: port}, deps)
		srv.server = &http.Server{Addr: addr, Handler: srv.router}
		go func() {
			log.Printf("API server listening on http://%s", addr)
			if err := srv.server.Serve(ln); err != nil && err != http.ErrServerClosed {
				log.Printf("API server error: %v", err)
			}
		}()
		return srv, port, nil
	}
	return nil, 0, fmt.Errorf("no listening port available in range %d-%d", basePort, basePort+probeStep)
}
