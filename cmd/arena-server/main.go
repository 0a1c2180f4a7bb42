package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/cheese-arena/internal/api"
	"github.com/park285/cheese-arena/internal/broker"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/gateway"
	"github.com/park285/cheese-arena/internal/janitor"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	if err := run(); err != nil {
		obslog.L().Error("server_exit", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}

func run() error {
	logger := obslog.L()
	cfg, err := appcfg.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	narrator, err := msgcat.NewNarrator(cat, obslog.Named("narrator"))
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := newBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	reg := match.NewRegistry(
		match.WithPublisher(bus),
		match.WithNarrator(narrator),
		match.WithLogger(obslog.Named("registry")),
	)

	jan, err := janitor.Start(reg, janitor.Config{
		Interval:    cfg.SweepInterval,
		IdleTTL:     cfg.MatchIdleTTL,
		FinishedTTL: cfg.MatchFinishedTTL,
	}, obslog.Named("janitor"))
	if err != nil {
		return err
	}
	defer jan.Stop()

	streamOpts := gateway.Options{
		Buffer:         cfg.StreamBuffer,
		Keepalive:      cfg.SSEKeepalive,
		WriteTimeout:   cfg.WriteTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	app := api.NewApp(reg, api.Options{AllowedOrigins: cfg.AllowedOrigins, Stream: streamOpts}, obslog.Named("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr), zap.String("broker", cfg.Broker))
		return app.Listen(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if cfg.WSAddr != "" {
		wsSrv := &http.Server{
			Addr:              cfg.WSAddr,
			Handler:           gateway.NewWSMux(reg, streamOpts, obslog.Named("ws")),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("ws_listen", zap.String("addr", cfg.WSAddr))
			if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return wsSrv.Shutdown(sctx)
		})
	}

	err = g.Wait()
	logger.Info("server_stopped", zap.Int("matches", reg.Len()))
	if ctx.Err() != nil {
		// a signal, not a failure
		return nil
	}
	return err
}

func newBroker(ctx context.Context, cfg *appcfg.AppConfig) (broker.Broker, error) {
	switch cfg.Broker {
	case appcfg.BrokerRedis:
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		b, err := broker.Dial(dctx, cfg.RedisURL, obslog.Named("broker"))
		if err != nil {
			return nil, fmt.Errorf("redis broker: %w", err)
		}
		return b, nil
	default:
		return broker.NewMemory(obslog.Named("broker")), nil
	}
}
