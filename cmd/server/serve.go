package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/internal/config"
	"github.com/jrsteele09/lm-mcp-gateway/mcpserver"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	cleanupInterval = time.Minute
)

func run(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer g.close()

	if cfg.Transport == config.TransportStdio {
		return runStdio(ctx, g)
	}
	return runHTTP(ctx, g)
}

// runStdio resolves the caller once from the configured API token and serves
// MCP over stdin and stdout.
func runStdio(ctx context.Context, g *gateway) error {
	identity, err := g.authenticator.AuthenticateBearer(ctx, g.cfg.Security.APIToken)
	if err != nil {
		return errors.Wrap(err, "[runStdio] authenticate")
	}
	log.Info().Str("principal", identity.Principal.DisplayName()).Str("method", string(identity.Method)).
		Msg("serving MCP over stdio")
	return mcpserver.ServeStdio(ctx, g.mcp, identity, os.Stdin, os.Stdout)
}

func runHTTP(ctx context.Context, g *gateway) error {
	handler, err := g.httpServer()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              g.cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdownFns := []func(context.Context) error{handler.Shutdown, httpServer.Shutdown}

	eg, egCtx := errgroup.WithContext(ctx)

	if g.cfg.TLS.Enabled() {
		m := &autocert.Manager{
			Cache:      autocert.DirCache(g.cfg.TLS.CacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(g.cfg.TLS.Domains...),
			Email:      g.cfg.TLS.Email,
		}
		httpServer.Addr = ":443"
		httpServer.TLSConfig = &tls.Config{
			GetCertificate: m.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}

		httpRedirect := &http.Server{
			Addr:              ":80",
			Handler:           m.HTTPHandler(http.HandlerFunc(redirectToHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		shutdownFns = append(shutdownFns, httpRedirect.Shutdown)
		eg.Go(func() error {
			return listenAndServe(httpRedirect, httpRedirect.ListenAndServe)
		})
		eg.Go(func() error {
			log.Info().Strs("domains", g.cfg.TLS.Domains).Str("transport", g.cfg.Transport).Msg("gateway listening with TLS")
			return listenAndServe(httpServer, func() error { return httpServer.ListenAndServeTLS("", "") })
		})
	} else {
		eg.Go(func() error {
			log.Info().Str("addr", httpServer.Addr).Str("base_url", g.cfg.BaseURL).Str("transport", g.cfg.Transport).
				Msg("gateway listening")
			return listenAndServe(httpServer, httpServer.ListenAndServe)
		})
	}

	if g.scheduler != nil {
		eg.Go(func() error {
			return g.scheduler.RunSweeper(egCtx, g.cfg.Store.SweepInterval)
		})
	}
	eg.Go(func() error {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-egCtx.Done():
				return nil
			case <-ticker.C:
				g.cleanup()
			}
		}
	})

	eg.Go(func() error {
		<-egCtx.Done()
		return shutdown(shutdownFns)
	})

	return eg.Wait()
}

func listenAndServe(srv *http.Server, serve func() error) error {
	if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "[listenAndServe] %s", srv.Addr)
	}
	return nil
}

func shutdown(fns []func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Msg("shutting down")
	var firstErr error
	for _, fn := range fns {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "[shutdown]")
		}
	}
	return firstErr
}

func redirectToHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
}
