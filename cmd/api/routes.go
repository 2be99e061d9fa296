package main

import (
	"log/slog"
	"net/http"

	"clawfinance/internal/shared/config"
	"clawfinance/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", deps.HealthHandler.HandleHealth)

	authMiddleware := middleware.Auth(deps.JWT)
	authLimit := middleware.RateLimit(deps.RateLimitStore, "auth", cfg.RateLimit.AuthMax, cfg.RateLimit.Window, logger)
	defaultLimit := middleware.RateLimit(deps.RateLimitStore, "api", cfg.RateLimit.DefaultMax, cfg.RateLimit.Window, logger)

	// Credential submission gets the tighter limit.
	protectedAuth := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(authLimit(h))
	}
	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(defaultLimit(h))
	}

	// Connections
	mux.Handle("POST /api/connections/authorize", protectedAuth(deps.ConnectionHandler.HandleAuthorize))
	mux.Handle("POST /api/connections/mfa", protectedAuth(deps.ConnectionHandler.HandleMFA))
	mux.Handle("GET /api/connections", protected(deps.ConnectionHandler.HandleList))
	mux.Handle("GET /api/connections/{id}", protected(deps.ConnectionHandler.HandleGet))
	mux.Handle("DELETE /api/connections/{id}", protected(deps.ConnectionHandler.HandleDisconnect))
	mux.Handle("POST /api/connections/{id}/sync", protected(deps.ConnectionHandler.HandleSync))
	mux.Handle("GET /api/connections/{id}/accounts", protected(deps.ConnectionHandler.HandleLiveAccounts))

	// Stored data
	mux.Handle("GET /api/accounts", protected(deps.AccountHandler.HandleListAccounts))
	mux.Handle("GET /api/accounts/{id}/transactions", protected(deps.AccountHandler.HandleListTransactions))

	// Apply global middleware, innermost first.
	handler := middleware.CORS(cfg.CORS.AllowedOrigins)(mux)
	handler = middleware.SecurityHeaders(handler)

	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
	}

	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(handler)

	return handler
}
