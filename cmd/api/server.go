package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"clawfinance/internal/interfaces/scheduler"
	"clawfinance/internal/shared/config"
	"clawfinance/internal/shared/middleware"
)

// Servers are the listeners started by StartServers. Redirect is nil unless
// TLS and the :80 redirect are both enabled.
type Servers struct {
	Main     *http.Server
	Redirect *http.Server
}

// StartServers creates and starts the main server and optional redirect
// server. A listener that fails to start is reported on errCh.
func StartServers(handler http.Handler, cfg *config.Config, logger *slog.Logger, errCh chan<- error) *Servers {
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	s := &Servers{
		Main: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
	}

	if cfg.TLS.Enabled && cfg.TLS.RedirectHTTP {
		s.Redirect = &http.Server{
			Addr:         ":80",
			Handler:      middleware.RequireHTTPS(cfg.Server.AllowedHosts)(http.NotFoundHandler()),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("HTTP redirect server starting", "addr", s.Redirect.Addr)
			if err := s.Redirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP redirect server error", "error", err)
			}
		}()
	}

	go func() {
		var err error
		if cfg.TLS.Enabled {
			logger.Info("HTTPS server starting", "addr", addr)
			err = s.Main.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		} else {
			logger.Info("HTTP server starting", "addr", addr)
			err = s.Main.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return s
}

// GracefulShutdown stops the scheduler first so no new syncs start, then
// drains the HTTP servers.
func GracefulShutdown(s *Servers, sched *scheduler.Scheduler, timeout time.Duration, logger *slog.Logger) {
	logger.Info("server shutting down")

	if sched != nil {
		sched.Shutdown(timeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.Redirect != nil {
		if err := s.Redirect.Shutdown(ctx); err != nil {
			logger.Error("error shutting down HTTP redirect server", "error", err)
		}
	}

	if err := s.Main.Shutdown(ctx); err != nil {
		logger.Error("error shutting down main server", "error", err)
	}

	logger.Info("server stopped")
}
