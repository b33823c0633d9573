package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/BundleBox/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	r, closeFn, err := buildRelay(cfg, defaultRelayFactories())
	if err != nil {
		panic(err)
	}
	defer closeFn()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := runRelayHTTPServer(ctx, relayHTTPOpts{
			httpAddr:    cfg.BundleBox.RelayHTTPAddr,
			swaggerPath: os.Getenv("relaySwaggerPath"),
			relay:       r,
			cfg:         cfg,
		})
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("relay HTTP server", "error", err.Error())
		}
	}()

	slog.Info("relay started", "topic", settingsFromConfig(cfg).topic)
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
