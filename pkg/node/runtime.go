package node

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cepa-network/cepa-relay/internal/logging"
	"github.com/cepa-network/cepa-relay/internal/metrics"
	"github.com/cepa-network/cepa-relay/internal/ratelimit"
	"github.com/cepa-network/cepa-relay/pkg/directory"
	"github.com/cepa-network/cepa-relay/pkg/onion"
	"github.com/cepa-network/cepa-relay/pkg/relay"
)

// Runtime owns a node's keypair and delivery log behind a single coarse
// mutex, and coordinates the directory client and relay engine that run
// around them. The directory snapshot is held by the directory client
// under its own lock.
type Runtime struct {
	cfg     relay.Config
	log     *logging.Logger
	metrics *metrics.PrometheusMetrics

	dirClient *directory.Client
	engine    *relay.Engine
	health    *metrics.HealthChecker

	mu      sync.Mutex
	privKey *onion.PrivateKey
	pubKey  *onion.PublicKey
	log_    *DeliveryLog
}

// New builds a node runtime with a fresh ephemeral RSA keypair.
func New(cfg relay.Config, log *logging.Logger, m *metrics.PrometheusMetrics) (*Runtime, error) {
	priv, pub, err := onion.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating node keypair: %w", err)
	}

	r := &Runtime{
		cfg:     cfg,
		log:     log.WithComponent("node"),
		metrics: m,
		privKey: priv,
		pubKey:  pub,
		log_:    NewDeliveryLog(),
		health:  metrics.NewHealthChecker("cepa-node"),
	}

	r.health.RegisterCheck("directory-snapshot", metrics.SnapshotFreshnessCheck(
		3*cfg.Directory.AutoRefreshRate,
		func() uint64 { return r.Snapshot().Timestamp },
		func() time.Time { return time.Unix(int64(r.Snapshot().Timestamp), 0) },
	))
	r.health.RegisterCheck("liveness", metrics.AlwaysHealthy("node runtime running"))

	r.dirClient = directory.NewClient(cfg.Directory.URL, cfg.Directory.AutoRefreshRate, log, m)
	r.engine = relay.NewEngine(cfg.Node, r, r.log, m, r, ratelimit.NewLimiter(ratelimit.Config{}))

	return r, nil
}

// PrivateKey satisfies relay.KeyHolder.
func (r *Runtime) PrivateKey() *onion.PrivateKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.privKey
}

// PublicKey returns the node's own public key.
func (r *Runtime) PublicKey() *onion.PublicKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubKey
}

// Snapshot returns the currently held directory snapshot, delegating to
// the directory client, which guards it under its own lock.
func (r *Runtime) Snapshot() onion.DirectorySnapshot {
	return r.dirClient.Snapshot()
}

// Record satisfies relay.DeliveryRecorder, appending under the runtime's
// own lock.
func (r *Runtime) Record(kind, summary string) {
	r.mu.Lock()
	r.log_.append(kind, summary)
	r.mu.Unlock()
}

// LogEntries returns a snapshot of the delivery log.
func (r *Runtime) LogEntries() []DeliveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log_.entries()
}

// FlushLog clears the delivery log.
func (r *Runtime) FlushLog() {
	r.mu.Lock()
	r.log_.flush()
	r.mu.Unlock()
}

// Start spawns the listener, directory client, and optional metrics/
// health endpoint as background goroutines, returning once they're
// running. It does not block; the caller (typically the operator shell)
// continues on its own goroutine.
func (r *Runtime) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", r.cfg.Node.RouterPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	go func() {
		if err := r.engine.Serve(ctx, listener); err != nil {
			r.log.Error().Err(err).Msg("relay engine stopped")
		}
	}()

	go r.dirClient.Run(ctx)

	if r.cfg.Metrics.Enabled && r.metrics != nil {
		go r.serveMetrics(ctx)
	}

	r.log.Info().Int("router_port", r.cfg.Node.RouterPort).Msg("node started")
	return nil
}

func (r *Runtime) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle(r.cfg.Metrics.Path, r.metrics.Handler())
	mux.HandleFunc(r.cfg.Metrics.HealthPath, r.health.HealthHandler())
	mux.HandleFunc("/live", r.health.LivenessHandler())
	mux.HandleFunc("/ready", r.health.ReadinessHandler(func() bool {
		return r.Snapshot().Timestamp != 0
	}))

	srv := &http.Server{Addr: r.cfg.Metrics.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		r.log.Error().Err(err).Msg("metrics server stopped")
	}
}

// ForceDirectoryPull triggers an immediate out-of-cycle directory fetch.
func (r *Runtime) ForceDirectoryPull(ctx context.Context) {
	r.dirClient.Pull(ctx)
}

// Publish registers this node's own host and public key with the
// directory.
func (r *Runtime) Publish(ctx context.Context, host string) error {
	return r.dirClient.Publish(ctx, host, r.PublicKey().Encode())
}

// Send originates a packet to destination carrying payload.
func (r *Runtime) Send(destination string, payload []byte) error {
	snapshot := r.Snapshot()
	pub := r.PublicKey()
	err := relay.Send(snapshot, r.cfg.Directory.PathLength, pub, destination, payload, r.cfg.Node, rand.Intn, r.metrics)
	if err != nil {
		return err
	}
	r.Record("SENT", "payload to "+destination)
	return nil
}
