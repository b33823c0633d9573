package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/BundleBox/config"
	"github.com/BearBump/BundleBox/internal/api/httpx"
	"github.com/BearBump/BundleBox/internal/services/relay"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type relayHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	relay *relay.Relay
	cfg   *config.Config
}

type statusBody struct {
	Status string `json:"status"`
}

func newRelayRouter(opts relayHTTPOpts) http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.RequestIDMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusBody{Status: "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.relay == nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, statusBody{Status: "starting"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusBody{Status: "ready"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		if opts.relay == nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, httpx.ErrorBody{Error: "relay not wired"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, opts.relay.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, httpx.ErrorBody{Error: "config not wired"})
			return
		}
		// только рабочие параметры relay, без секретов
		s := settingsFromConfig(opts.cfg)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"topic":                  s.topic,
			"pollIntervalMillis":     s.pollInterval.Milliseconds(),
			"batchSize":              s.batchSize,
			"concurrency":            s.concurrency,
			"leaseSeconds":           int(s.lease.Seconds()),
			"pushRateLimitPerMinute": s.pushPerMin,
			"pushWebhookConfigured":  opts.cfg.BundleBox.PushWebhookURL != "",
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if opts.relay == nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, httpx.ErrorBody{Error: "relay not wired"})
			return
		}
		opts.relay.Trigger()
		httpx.WriteJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
	})

	if opts.swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.swaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}
	return r
}

func runRelayHTTPServer(ctx context.Context, opts relayHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
		}
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newRelayRouter(opts), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("relay HTTP listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
