// Package daemon wires the node together: configuration, logging, the
// archival store, the proof verifier and the chain state manager, plus the
// optional metrics listener. It owns startup ordering and graceful shutdown.
package daemon

import (
	"context"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/proofs"
	"github.com/triton-chain/triton/services/chainstate"
	"github.com/triton-chain/triton/settings"
	"github.com/triton-chain/triton/stores/archive"
	"github.com/triton-chain/triton/ulogger"
)

// Option is a functional option type for configuring the Daemon.
type Option func(*Daemon)

// WithLoggerFactory provides a custom logger factory for the Daemon and its
// components.
func WithLoggerFactory(factory func(serviceName string) ulogger.Logger) Option {
	return func(d *Daemon) {
		d.loggerFactory = factory
	}
}

// WithVerifier overrides the proof verifier the daemon would otherwise build
// from its settings.
func WithVerifier(verifier proofs.Verifier) Option {
	return func(d *Daemon) {
		d.verifier = verifier
	}
}

type Daemon struct {
	settings      *settings.Settings
	loggerFactory func(serviceName string) ulogger.Logger

	verifier proofs.Verifier
	store    archive.Store
	manager  *chainstate.Manager

	serverMu sync.Mutex
	server   *http.Server

	doneCh        chan struct{}
	closeDoneOnce sync.Once
}

func New(tSettings *settings.Settings, opts ...Option) *Daemon {
	d := &Daemon{
		settings: tSettings,
		loggerFactory: func(serviceName string) ulogger.Logger {
			return ulogger.New(serviceName, ulogger.WithLevel(tSettings.LogLevel))
		},
		doneCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Start brings up the node. It blocks until the components are running and
// returns; shutdown happens via Stop. The order matters: the archival store
// must be open before the chain state manager restores from it.
func (d *Daemon) Start(ctx context.Context) error {
	logger := d.loggerFactory("daemon")

	logger.Infof("starting triton node on %s", d.settings.ChainCfgParams.Name)

	store, err := d.openStore()
	if err != nil {
		return err
	}

	d.store = store

	verifier, err := d.buildVerifier()
	if err != nil {
		_ = store.Close()
		return err
	}

	d.verifier = verifier

	manager, err := chainstate.New(ctx, d.loggerFactory("chainstate"), d.settings, store, verifier)
	if err != nil {
		_ = store.Close()
		return err
	}

	d.manager = manager

	if d.settings.MetricsListenAddress != "" {
		d.startMetricsServer(logger)
	}

	tip := manager.GetTip()
	logger.Infof("node started, tip %s at height %d", tip.Hash(), tip.Height)

	return nil
}

// Wait blocks until Stop has completed.
func (d *Daemon) Wait() {
	<-d.doneCh
}

// Stop shuts the node down in reverse start order. It is safe to call more
// than once.
func (d *Daemon) Stop(ctx context.Context) error {
	logger := d.loggerFactory("daemon")

	var errs []error

	d.serverMu.Lock()
	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)

		if err := d.server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("error shutting down metrics server: %v", err)
		}

		cancel()

		d.server = nil
	}
	d.serverMu.Unlock()

	if d.manager != nil {
		d.manager.Stop()
	}

	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, err)
		}

		d.store = nil
	}

	d.closeDoneOnce.Do(func() {
		close(d.doneCh)
	})

	if len(errs) > 0 {
		return errors.NewProcessingError("daemon shutdown", errs[0])
	}

	logger.Infof("node stopped")

	return nil
}

// Chainstate exposes the running chain state manager, nil before Start.
func (d *Daemon) Chainstate() *chainstate.Manager {
	return d.manager
}

func (d *Daemon) openStore() (archive.Store, error) {
	logger := d.loggerFactory("archive")

	if d.settings.Archive.InMemory {
		return archive.NewInMemory(logger)
	}

	return archive.New(logger, d.settings.Archive.StorePath)
}

func (d *Daemon) buildVerifier() (proofs.Verifier, error) {
	if d.verifier != nil {
		return d.verifier, nil
	}

	if d.settings.Proof.UseMockVerifier {
		return proofs.NewMockVerifier(), nil
	}

	return proofs.NewGroth16VerifierFromFile(d.settings.Proof.VerifyingKeyPath)
}

func (d *Daemon) startMetricsServer(logger ulogger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{
		Addr:              d.settings.MetricsListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.serverMu.Lock()
	d.server = server
	d.serverMu.Unlock()

	go func() {
		logger.Infof("metrics listening on %s", server.Addr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()
}
