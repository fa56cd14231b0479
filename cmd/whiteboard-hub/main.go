package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/httpapi"
	"github.com/DoyleJ11/lab-whiteboard/internal/hub"
	"github.com/DoyleJ11/lab-whiteboard/internal/relay"
	"github.com/DoyleJ11/lab-whiteboard/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type config struct {
	addr           string
	databaseURL    string
	redisURL       string
	allowedOrigins []string
	dev            bool
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseFlags(args []string) (config, error) {
	_ = godotenv.Load()

	var cfg config
	fs := pflag.NewFlagSet("whiteboard-hub", pflag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", envOr("WHITEBOARD_ADDR", ":8000"), "listen address")
	fs.StringVar(&cfg.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres DSN; empty keeps rooms in memory")
	fs.StringVar(&cfg.redisURL, "redis-url", os.Getenv("REDIS_URL"), "redis URL for sharing rooms across instances")
	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origin", splitList(os.Getenv("WHITEBOARD_ALLOWED_ORIGINS")), "origin allowed to call the API (repeatable, * for any)")
	fs.BoolVar(&cfg.dev, "dev", os.Getenv("LOG_DEV") != "", "development logging")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(serve(cfg, logger))
}

// serve runs the hub and returns the exit code once the logger is flushed.
func serve(cfg config, logger *zap.Logger) int {
	defer func() { _ = logger.Sync() }()
	if err := run(cfg, logger); err != nil {
		logger.Error("hub stopped", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store = store.NewMemory()
	if cfg.databaseURL != "" {
		pg, err := store.OpenPostgres(cfg.databaseURL)
		if err != nil {
			return err
		}
		st = pg
		logger.Info("rooms stored in postgres")
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	var rl relay.Relay = relay.Noop{}
	if cfg.redisURL != "" {
		r, err := relay.DialRedis(ctx, cfg.redisURL, logger)
		if err != nil {
			return err
		}
		rl = r
		logger.Info("relaying rooms over redis")
	}
	defer func() { err = multierr.Append(err, rl.Close()) }()

	h := hub.NewHub(ctx, hub.WithStore(st), hub.WithRelay(rl), hub.WithLogger(logger))

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr: cfg.addr,
		Handler: httpapi.SetupRoutes(h, httpapi.Options{
			AllowedOrigins: cfg.allowedOrigins,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		h.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
