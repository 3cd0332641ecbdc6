package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/score-attest/internal/api"
	"github.com/MJE43/score-attest/internal/apiauth"
	"github.com/MJE43/score-attest/internal/attest"
	"github.com/MJE43/score-attest/internal/batch"
	"github.com/MJE43/score-attest/internal/prover"
	"github.com/MJE43/score-attest/internal/store"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP api",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ln, err := net.Listen("tcp", a.cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", a.cfg.Server.Addr, err)
			}
			return a.serve(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

// serve runs until ctx is cancelled or the listener fails
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	logger := a.logger
	cfg := a.cfg

	db, err := store.NewSQLiteDB(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	engine, err := a.newEngine()
	if err != nil {
		return err
	}
	if g, ok := engine.(*prover.Groth16Engine); ok {
		logger.Info("running circuit setup")
		if err := g.Setup(); err != nil {
			return err
		}
	}

	token := ""
	if cfg.Server.RequireToken {
		token, err = a.tokenStore().Get(cfg.Server.TokenName)
		if errors.Is(err, apiauth.ErrNotFound) {
			return fmt.Errorf("server.require_token is set but no token %q exists, run 'scoreattest token generate'", cfg.Server.TokenName)
		}
		if err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := attest.NewService(attest.Options{
		Policy:         cfg.Policy,
		Engine:         engine,
		DB:             db,
		Metrics:        attest.NewMetrics(reg),
		Logger:         logger,
		Workers:        cfg.Prover.Workers,
		QueueSize:      cfg.Prover.QueueSize,
		MaxAttempts:    cfg.Prover.MaxAttempts,
		InitialBackoff: cfg.Prover.InitialBackoff,
		Timeout:        cfg.Prover.Timeout,
		EngineVersion:  api.EngineVersion,
	})
	defer svc.Close()
	if _, err := svc.Recover(ctx); err != nil {
		return err
	}

	server := api.NewServer(api.Options{
		Service:        svc,
		Batch:          batch.NewVerifier(cfg.Server.RequestTimeout),
		Logger:         logger,
		Token:          token,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	httpServer := &http.Server{
		Handler:           server.Routes(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	httpServer.RegisterOnShutdown(server.CloseStreams)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("engine", engine.Scheme()),
			zap.Bool("token_required", token != ""),
			zap.String("version", api.EngineVersion))
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		svc.Close()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
