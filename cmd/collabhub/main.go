// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wingedpig/collabhub/internal/admission"
	"github.com/wingedpig/collabhub/internal/api"
	"github.com/wingedpig/collabhub/internal/auth"
	"github.com/wingedpig/collabhub/internal/config"
	"github.com/wingedpig/collabhub/internal/execution"
	"github.com/wingedpig/collabhub/internal/metrics"
	"github.com/wingedpig/collabhub/internal/realtime"
	"github.com/wingedpig/collabhub/internal/session"
)

var buildVersion = "0.1.0"

func main() {
	var (
		configPath  string
		host        string
		port        int
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect collabhub.hjson)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&host, "host", "", "Server host (overrides config)")
	flag.IntVar(&port, "port", 0, "Server port (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.Parse()

	if showVersion {
		fmt.Printf("collabhub %s\n", buildVersion)
		os.Exit(0)
	}

	cfg, err := config.NewLoader().LoadWithDefaults(configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	if verr := config.NewValidator().Validate(cfg); verr != nil {
		log.Fatalf("Invalid configuration: %v", verr)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("collabhub: %v", err)
	}
}

// run wires every component (C1-C8) per spec.md §4 and serves until a
// shutdown signal arrives, grounded on the teacher's App.Run/Shutdown
// lifecycle (internal/app/app.go).
func run(cfg *config.Config) error {
	registry := session.NewRegistry()
	adm := admission.NewController(registry, time.Hour, cfg.MaxUsersPerSession, cfg.AllowGuestsDefault)

	verifier, err := auth.NewVerifier(auth.Config{
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowDevTokens: cfg.AllowDevTokens,
	})
	if err != nil {
		return fmt.Errorf("constructing token verifier: %w", err)
	}

	var dispatcher *execution.Dispatcher
	if cfg.PistonAPIURL != "" {
		dispatcher = execution.NewDispatcher(cfg.PistonAPIURL)
	}

	rlCfg := realtime.RateLimitConfig{
		MaxConnections: cfg.RateLimit.MaxConnections,
		Window:         cfg.RateLimit.Window,
	}

	// Hub is constructed with a nil ticker (metrics.NewTicker needs the Hub
	// itself as its Broadcaster/ActiveUserCounter), then wired via
	// SetTicker, mirroring admission's SetNotifier handshake below.
	hub, err := realtime.NewHub(registry, adm, verifier, dispatcher, nil, rlCfg, cfg.AllowGuestTransport)
	if err != nil {
		return fmt.Errorf("constructing connection hub: %w", err)
	}
	ticker := metrics.NewTicker(hub, hub)
	hub.SetTicker(ticker)
	adm.SetTicker(ticker)

	deps := api.Dependencies{
		Registry:   registry,
		Admission:  adm,
		Verifier:   verifier,
		Hub:        hub,
		Dispatcher: dispatcher,
	}

	serverCfg := api.ServerConfig{Host: cfg.Server.Host, Port: cfg.Server.Port}
	srv, boundPort, err := api.ProbeAndServe(serverCfg, cfg.Server.PortProbeStep, deps)
	if err != nil {
		return fmt.Errorf("binding server: %w", err)
	}
	log.Printf("collabhub %s listening on %s:%d", buildVersion, cfg.Server.Host, boundPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
