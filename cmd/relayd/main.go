// Command relayd is the relay daemon: an HTTP control plane and a KCP data
// plane sharing one relay core.
//
// Usage:
//
//	relayd -c /path/to/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vibing/relayd/internal/config"
	"github.com/vibing/relayd/internal/httpapi"
	"github.com/vibing/relayd/internal/kcptransport"
	"github.com/vibing/relayd/internal/metrics"
	"github.com/vibing/relayd/internal/relay"
)

var (
	configPath = flag.String("c", "config.yaml", "path to config file")
	devLog     = flag.Bool("dev", false, "use development (console) logging instead of JSON")
)

func main() {
	flag.Parse()

	log, err := newLogger(*devLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(log *zap.Logger) error {
	// ── 1. Load and validate config ──────────────────────────────────────
	log.Info("loading config", zap.String("path", *configPath))
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── 2. Metrics ────────────────────────────────────────────────────────
	m := metrics.NewPrometheus(prometheus.DefaultRegisterer)

	// ── 3. Relay core ─────────────────────────────────────────────────────
	// Core needs a Transport before it exists, and the KCP listener needs a
	// handler before it exists — resolved with a forwarding shim swapped in
	// once both are constructed.
	var transportRef transportHolder
	core := relay.New(&transportRef, log, m)

	// ── 4. KCP data plane ─────────────────────────────────────────────────
	kcpCfg := kcptransport.Config{
		ListenAddr:        fmt.Sprintf(":%d", cfg.KCP.Port),
		DualMode:          cfg.KCP.DualMode,
		NoDelay:           cfg.KCP.NoDelay,
		Interval:          cfg.KCP.Interval,
		Timeout:           time.Duration(cfg.KCP.TimeoutMs) * time.Millisecond,
		RecvBufferSize:    cfg.KCP.RecvBufferSize,
		SendBufferSize:    cfg.KCP.SendBufferSize,
		FastResend:        cfg.KCP.FastResend,
		ReceiveWindowSize: cfg.KCP.ReceiveWindowSize,
		SendWindowSize:    cfg.KCP.SendWindowSize,
		MaxRetransmit:     cfg.KCP.MaxRetransmit,
	}
	listener, err := kcptransport.Listen(kcpCfg, core, log)
	if err != nil {
		return fmt.Errorf("listen kcp: %w", err)
	}
	defer listener.Close()
	transportRef.set(listener)
	log.Info("kcp listening", zap.Int("port", cfg.KCP.Port))

	// ── 5. HTTP control plane ─────────────────────────────────────────────
	httpAddr := fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)
	apiSrv := httpapi.NewServer(httpapi.Config{ListenAddr: httpAddr, Core: core, Log: log})
	log.Info("http listening", zap.String("addr", httpAddr))

	// ── 6. GC tickers + worker goroutines under one cancellation signal ──
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := listener.Serve(); err != nil {
			return fmt.Errorf("kcp listener: %w", err)
		}
		return nil
	})
	g.Go(func() error { core.CreateCacheStore().Run(gctx); return nil })
	g.Go(func() error { core.JoinCacheStore().Run(gctx); return nil })
	g.Go(func() error { core.ModifyCacheStore().Run(gctx); return nil })
	g.Go(func() error { core.PendingConnStore().Run(gctx); return nil })

	// ── 7. Wait for SIGINT/SIGTERM, then drain ───────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-gctx.Done():
		log.Error("worker failed, shutting down", zap.Error(gctx.Err()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Stop accepting new HTTP requests, then tell every live KCP connection
	// to disconnect before the listener itself closes.
	_ = apiSrv.Shutdown(shutdownCtx)
	core.Shutdown()
	cancel()
	// Closing the listener is what lets listener.Serve return, so it must
	// happen before g.Wait.
	_ = listener.Close()

	if err := g.Wait(); err != nil {
		log.Error("worker exited with error", zap.Error(err))
	}
	return nil
}

// transportHolder lets Core be constructed before the concrete
// kcptransport.Listener exists, since each needs a reference to the other.
type transportHolder struct {
	relay.Transport
}

func (h *transportHolder) set(t relay.Transport) { h.Transport = t }
