package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flitsinc/go-taskfeed/internal/api"
	"github.com/flitsinc/go-taskfeed/internal/config"
	"github.com/flitsinc/go-taskfeed/internal/eventbus"
	"github.com/flitsinc/go-taskfeed/internal/feed"
	"github.com/flitsinc/go-taskfeed/internal/state"
	"github.com/flitsinc/go-taskfeed/internal/tasks"
	"github.com/flitsinc/go-taskfeed/internal/transport"
	"github.com/flitsinc/go-taskfeed/internal/web"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", "error", err)
		os.Exit(1)
	}

	db, err := state.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	bus := eventbus.NewBus(db)
	registry := tasks.NewRegistry(db, bus)

	controller := feed.NewController(feed.ControllerOptions{
		Gate:           &feed.Gate{HubURL: cfg.HubURL},
		Tokens:         &feed.HTTPTokenProvider{HubURL: cfg.HubURL},
		Transport:      &transport.WS{URL: wsURL(cfg.HubURL), Logger: logger},
		Store:          registry,
		Logger:         logger,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		ReconnectDelay: cfg.ReconnectDelay,
		BufferInterval: cfg.BufferInterval,
	})

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Error("listen", "error", err)
		os.Exit(1)
	}

	apiServer := &api.Server{Tasks: registry, Bus: bus, Feed: controller, StartedAt: time.Now().UTC()}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Handler())
	if cfg.WebDir != "" {
		mux.Handle("/", (&web.Server{Dir: cfg.WebDir}).Handler())
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Handler:           loggingMiddleware(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	go func() {
		logger.Info("feedd listening", "addr", listener.Addr().String(), "hub", cfg.HubURL)
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	controller.Start(serverCtx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	controller.Stop()
	serverCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
	_ = httpServer.Close()
}

// wsURL converts the hub base URL into the websocket endpoint.
func wsURL(hubURL string) string {
	ws := hubURL
	if strings.HasPrefix(ws, "https://") {
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	} else if strings.HasPrefix(ws, "http://") {
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimRight(ws, "/") + "/api/live/ws"
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
