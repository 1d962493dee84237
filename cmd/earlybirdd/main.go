package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"earlybird/config"
	"earlybird/core/events"
	"earlybird/native/endpoint"
	"earlybird/native/rukh"
	"earlybird/observability"
	"earlybird/observability/logging"
	"earlybird/rpc"
	"earlybird/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	log := logging.Setup("earlybirdd", cfg.Environment)
	log.Info("starting node", "network", cfg.NetworkName, "instance", cfg.InstanceID)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "engine"))
	if err != nil {
		log.Error("failed to open database", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	feeWallet, err := cfg.FeeWalletAddress()
	if err != nil {
		log.Error("invalid fee wallet", "error", err)
		os.Exit(1)
	}

	clock := newBlockClock(time.Duration(cfg.BlockTimeSeconds) * time.Second)
	defer clock.Stop()

	registry := endpoint.NewRegistry()

	engine := rukh.NewEngine()
	engine.SetState(rukh.NewKVState(db))
	engine.SetEmitter(observability.NewMetricsEmitter(&logEmitter{log: log}))
	engine.SetBlockFunc(clock.Height)
	engine.SetFeeWallet(feeWallet)
	engine.SetFeeCollector(&loggingFeeCollector{log: log})
	engine.SetDisputerRegistry(&loggingDisputers{log: log})
	engine.SetRecsSource(staticRecs{})
	engine.SetReceiverResolver(registry)

	send := rukh.NewSendEngine(engine)
	send.SetEmitter(observability.NewMetricsEmitter(&logEmitter{log: log}))

	if err := registry.RegisterLibrary(endpoint.Library{
		Name:    rukh.LibraryName,
		Version: 1,
		Send:    send,
		Receive: engine,
	}); err != nil {
		log.Error("failed to register library", "error", err)
		os.Exit(1)
	}

	server := rpc.NewServer(engine, send, registry, log)
	httpSrv := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("JSON-RPC listening", "addr", cfg.RPCAddress)
		errCh <- httpSrv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("rpc server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("node stopped")
}

// blockClock derives a monotonically increasing block height from wall time.
// The engine only needs heights for dispute windows and epoch boundaries, so a
// ticker-driven counter stands in for a consensus-provided height.
type blockClock struct {
	height uint64
	ticker *time.Ticker
	done   chan struct{}
}

func newBlockClock(interval time.Duration) *blockClock {
	c := &blockClock{ticker: time.NewTicker(interval), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-c.ticker.C:
				atomic.AddUint64(&c.height, 1)
			case <-c.done:
				return
			}
		}
	}()
	return c
}

func (c *blockClock) Height() uint64 {
	return atomic.LoadUint64(&c.height)
}

func (c *blockClock) Stop() {
	c.ticker.Stop()
	close(c.done)
}

// logEmitter forwards engine events to the structured log.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	l.log.Info("engine event", "type", evt.EventType())
}

// loggingFeeCollector records transfers without an on-chain bank module.
// Deployments that settle fees in a token ledger swap in their own collector.
type loggingFeeCollector struct {
	log *slog.Logger
}

func (c *loggingFeeCollector) Estimate(app [20]byte) (string, *big.Int, error) {
	return "native", big.NewInt(0), nil
}

func (c *loggingFeeCollector) Collect(payer, beneficiary [20]byte, token string, amount *big.Int) error {
	c.log.Info("fee transfer", "token", token, "amount", amount.String())
	return nil
}

type loggingDisputers struct {
	log *slog.Logger
}

func (d *loggingDisputers) NotifyInvalidProof(app [20]byte, proofHash [32]byte, disputer [20]byte) {
	d.log.Warn("proof invalidated by dispute")
}

// staticRecs serves fixed dispute recommendations until an external recs
// source is wired in.
type staticRecs struct{}

func (staticRecs) RecommendedDisputeTime(app [20]byte) uint64                { return 50 }
func (staticRecs) RecommendedDisputeResolutionExtension(app [20]byte) uint64 { return 100 }
func (staticRecs) RevealedSecret(app [20]byte, msgHash [32]byte) [32]byte    { return [32]byte{} }
func (staticRecs) RecommendedRelayer(app [20]byte) [20]byte                  { return [20]byte{} }
