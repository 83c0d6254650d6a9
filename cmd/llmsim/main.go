package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/llmsim/simulator/internal/config"
	"github.com/llmsim/simulator/internal/engine"
	"github.com/llmsim/simulator/internal/latency"
	"github.com/llmsim/simulator/internal/logger"
	"github.com/llmsim/simulator/internal/server"
	"github.com/llmsim/simulator/internal/tokengen"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 clean shutdown, 1 config error,
// 2 bind failure or forced shutdown after the drain timeout elapsed,
// 3 unrecoverable error during initialization.
func run() int {
	_ = godotenv.Load()

	cfgPath := os.Getenv("LLMSIM_CONFIG")
	cfg, v, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger.Init(cfg.Env)
	defer logger.Sync()

	srv, httpSrv, err := initialize(cfg, v, cfgPath)
	if err != nil {
		if panicErr, ok := err.(initPanicError); ok {
			logger.Log.Errorw("unrecoverable error during initialization", "err", panicErr)
			return 3
		}
		logger.Log.Errorw("failed to build components", "err", err)
		return 1
	}

	logger.Log.Infow("starting simulator",
		"addr", httpSrv.Addr,
		"env", cfg.Env,
		"models", len(cfg.Models),
		"chaosEnabled", cfg.Chaos.Enabled,
		"latencyEnabled", cfg.Latency.Enabled,
		"maxConcurrentRequests", cfg.Server.MaxConcurrentRequests,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Log.Errorw("server failed to start", "err", err)
		return 2
	case <-sigCh:
		logger.Log.Info("shutdown signal received, draining")
	}

	srv.SetDraining(true)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDrainTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Log.Errorw("drain timeout elapsed, forcing shutdown", "err", err)
		return 2
	}

	logger.Log.Info("shutdown complete")
	return 0
}

// initPanicError wraps a recovered panic from initialize, distinguishing an
// unrecoverable internal failure from an ordinary configuration error.
type initPanicError struct{ cause any }

func (e initPanicError) Error() string { return fmt.Sprintf("panic: %v", e.cause) }

// initialize wires the registry, chaos decider, scheduler, and server from
// cfg. Any panic during component construction is recovered and reported
// as an initPanicError rather than crashing the process, so run() can map
// it to the unrecoverable-init-error exit code.
func initialize(cfg *config.Config, v *viper.Viper, cfgPath string) (srv *server.Server, httpSrv *http.Server, err error) {
	defer func() {
		if r := recover(); r != nil {
			srv, httpSrv = nil, nil
			err = initPanicError{cause: r}
		}
	}()

	comps, buildErr := cfg.Build()
	if buildErr != nil {
		return nil, nil, buildErr
	}
	config.WatchChaosRules(v, cfgPath, comps.Chaos)

	sampler := latency.NewSampler(cfg.LatencyMultiplier())
	scheduler := engine.NewScheduler(sampler, tokengen.New())
	stats := engine.NewStats()
	dispatcher := engine.NewDispatcher(comps.Registry, comps.Chaos, scheduler, comps.Profiles, comps.RootSeed, stats)

	srv = server.New(dispatcher, comps.Registry, stats, server.Config{
		MaxConcurrentRequests: cfg.Server.MaxConcurrentRequests,
		RequestTimeout:        cfg.Server.RequestTimeout,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv = &http.Server{Addr: addr, Handler: srv.Handler()}
	return srv, httpSrv, nil
}
