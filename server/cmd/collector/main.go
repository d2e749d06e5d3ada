package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/logship/logship/server/internal/api"
	"github.com/logship/logship/server/internal/auth"
	"github.com/logship/logship/server/internal/config"
	"github.com/logship/logship/server/internal/store"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to config file (defaults apply when empty)")
	envFile := flag.String("env-file", ".env", "load secrets from this dotenv file if it exists")
	debug := flag.Bool("debug", false, "log every token and batch")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, *envFile); err != nil {
		slog.Error("collector stopped", "err", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := config.Defaults()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	sc := cfg.Server

	slog.Info("logship-collector starting",
		"http_port", sc.HTTPPort,
		"auth_path", sc.AuthPath,
		"logs_path", sc.LogsPath,
		"auth_mode", sc.Auth.Mode,
		"clients", len(sc.Auth.Clients),
		"retention", sc.Store.Retention,
	)

	key := sc.Auth.SigningKey()
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate signing key: %w", err)
		}
		slog.Warn("no signing key configured, tokens will not survive a restart")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(sc.Store.Retention)
	iss := auth.NewIssuer(key, sc.Auth.TokenLease, sc.Auth.Secrets())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           api.New(sc, st, iss),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st.Run(ctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("logship-collector shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
