package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/addon-auth/internal/config"
	"github.com/openkcm/addon-auth/internal/middleware/sessionid"
	"github.com/openkcm/addon-auth/internal/pkce"
)

func newRouter(cfg *config.Config, svc Services) http.Handler {
	h := &addonHandler{
		Services:     svc,
		cookie:       cfg.Session.Cookie,
		newSessionID: pkce.Source{}.SessionID,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(newTraceMiddleware(cfg))
	r.Use(sessionid.Middleware(h.cookie, h.newSessionID))

	r.Get("/addon-discovery", h.discovery)
	r.Get("/authorize", h.authorize)
	r.Get("/callback", h.callback)
	r.Get("/clear", h.clear)
	r.Get("/revoke", h.revoke)
	r.Get("/attachment-options", h.attachmentOptions)
	r.Post("/attachment-options", h.attachmentOptions)
	r.Post("/create-attachment", h.createAttachment)
	r.Get("/load-content-attachment", h.loadContentAttachment)
	r.Get("/status", h.status)

	return r
}

// createHTTPServer creates the add-on http server using the given config
func createHTTPServer(_ context.Context, cfg *config.Config, svc Services) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: newRouter(cfg, svc),
	}
}

// StartHTTPServer starts the add-on HTTP server and blocks until ctx is done.
func StartHTTPServer(ctx context.Context, cfg *config.Config, svc Services) error {
	if err := initMeters(ctx, cfg); err != nil {
		return err
	}

	server := createHTTPServer(ctx, cfg, svc)

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// The address may be given as network://address, which makes binding
	// to a unix socket possible. Otherwise tcp is used.
	network := "tcp"
	if idx := strings.Index(server.Addr, "://"); idx != -1 {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
