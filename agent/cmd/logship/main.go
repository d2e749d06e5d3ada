// Command logship forwards lines read from stdin to the log collector.
//
// Each line becomes one event. A line starting with a level name followed by
// a colon ("warn: disk almost full") is logged at that level; other lines use
// --level.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/logship/logship/agent/logship"
	"github.com/logship/logship/pkg/types"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to config file (defaults apply when empty)")
	envFile := flag.String("env-file", ".env", "load secrets from this dotenv file if it exists")
	stack := flag.String("stack", "backend", "stack stamped on every event")
	pkg := flag.String("package", "stdin", "package stamped on every event")
	level := flag.String("level", "info", "level for lines without a level prefix")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9100)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*configPath, *envFile, *stack, *pkg, *level, *metricsAddr); err != nil {
		slog.Error("logship stopped", "err", err)
		os.Exit(1)
	}
}

func run(configPath, envFile, stack, pkg, level, metricsAddr string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	if _, err := types.ParseLevel(level); err != nil {
		return err
	}

	cfg := logship.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = logship.LoadConfig(configPath); err != nil {
			return err
		}
	}

	client, err := logship.New(cfg, logship.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	slog.Info("logship starting",
		"logs_url", cfg.LogsURL,
		"source", cfg.Source,
		"batch_size", cfg.BatchSize,
		"email", client.Credentials().Email,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if configPath != "" {
		g.Go(func() error { return client.WatchCredentials(ctx, configPath) })
	}
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: client.MetricsHandler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}
	lines := make(chan error, 1)
	go func() { lines <- forward(ctx, os.Stdin, client, stack, pkg, level) }()

	// The scanner cannot be interrupted, so a signal stops waiting on it.
	select {
	case err = <-lines:
	case <-ctx.Done():
	}
	cancel()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if cerr := client.Close(context.Background()); cerr != nil {
		slog.Warn("logship: events left unsent", "err", cerr)
	}
	st := client.Stats()
	slog.Info("logship finished", "sent", st.Sent, "dropped", st.Dropped, "pending", st.Pending)
	return err
}

// forward logs every non-empty line of r until EOF or ctx ends.
func forward(ctx context.Context, r io.Reader, client *logship.Client, stack, pkg, level string) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lvl, msg := splitLevel(line, level)
		client.Log(stack, lvl, pkg, msg)
	}
	return sc.Err()
}

// splitLevel extracts a "level: message" prefix, falling back to def.
func splitLevel(line, def string) (string, string) {
	prefix, rest, ok := strings.Cut(line, ":")
	if !ok {
		return def, line
	}
	if _, err := types.ParseLevel(prefix); err != nil {
		return def, line
	}
	return prefix, strings.TrimSpace(rest)
}
