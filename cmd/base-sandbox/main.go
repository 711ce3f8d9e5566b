// Command base-sandbox serves an in-memory Base API for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/basekit/base_sdk_go/internal/devseed"
	"github.com/basekit/base_sdk_go/internal/emulator"
	"github.com/basekit/base_sdk_go/pkg/log"
)

func main() {
	configFile := flag.String("config", "", "path to TOML config file")
	addr := flag.String("addr", "", "listen address (default :8787)")
	seed := flag.String("seed", "", "path to JSON or TOML seed file")
	latency := flag.Duration("latency", 0, "artificial latency to inject per request")
	fail := flag.String("fail", "", "failure injection (rate=<float>,code=<httpStatus>)")
	flag.Parse()

	cfg := DefaultConfig()
	if *configFile != "" {
		loaded, err := LoadConfig(*configFile)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "seed":
			cfg.Server.Seed = *seed
		case "latency":
			cfg.Server.Latency = latency.String()
		case "fail":
			cfg.Server.Fail = *fail
		}
	})
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	if err := log.Init(cfg.Log); err != nil {
		fatal(errors.WithMessage(err, "failed to init log"))
	}

	sb, err := newSandbox(cfg)
	if err != nil {
		fatal(err)
	}
	printExports(cfg.Server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := sb.run(ctx); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "base-sandbox:", err)
	os.Exit(1)
}

type sandbox struct {
	logger   *slog.Logger
	registry *emulator.Registry
	server   *http.Server
}

func newSandbox(cfg Config) (*sandbox, error) {
	logger := log.Logger("sandbox")
	registry := emulator.NewRegistry(cfg.Server.Prefix)

	if cfg.Server.Seed != "" {
		seed, err := devseed.Load(cfg.Server.Seed)
		if err != nil {
			return nil, errors.WithMessage(err, "load seed")
		}
		for _, name := range seed.Bases() {
			if err := registry.Seed(name, seed[name]); err != nil {
				return nil, errors.WithMessagef(err, "apply seed for %s", name)
			}
			logger.Info("seeded base", "base", name, "items", len(seed[name]))
		}
	}

	var delay time.Duration
	if cfg.Server.Latency != "" {
		d, err := time.ParseDuration(cfg.Server.Latency)
		if err != nil {
			return nil, errors.Wrap(err, "parse latency")
		}
		delay = d
	}
	failCfg, err := parseFailConfig(cfg.Server.Fail)
	if err != nil {
		return nil, errors.Wrap(err, "parse fail")
	}

	var h http.Handler = registry
	h = chaosMiddleware(delay, failCfg, h)
	h = loggingMiddleware(logger, h)
	h = recoveryMiddleware(logger, h)
	h = corsMiddleware(h)

	return &sandbox{
		logger:   logger,
		registry: registry,
		server: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *sandbox) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.WithMessage(err, "http server error")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func printExports(cfg ServerConfig) {
	host := cfg.Addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	fmt.Println()
	fmt.Println("export BASE_RUNTIME_MODE=http")
	fmt.Printf("export BASE_API_URL=http://%s%s\n", host, cfg.Prefix)
	fmt.Println("export BASE_DATA_KEY=sandbox_secret")
	fmt.Println()
}
