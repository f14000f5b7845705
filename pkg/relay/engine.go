package relay

import (
	"context"
	"net"
	"time"

	"github.com/cepa-network/cepa-relay/internal/logging"
	"github.com/cepa-network/cepa-relay/internal/metrics"
	"github.com/cepa-network/cepa-relay/internal/ratelimit"
	"github.com/cepa-network/cepa-relay/pkg/onion"
)

// DeliveryRecorder is the narrow interface the relay engine uses to log
// outcomes, implemented by the node runtime's delivery log. Kept as an
// interface (rather than importing the node package directly) so the
// relay engine has no dependency on the package that owns it.
type DeliveryRecorder interface {
	Record(kind, summary string)
}

// KeyHolder resolves the node's own private key, used to unwrap an
// inbound layer.
type KeyHolder interface {
	PrivateKey() *onion.PrivateKey
}

// Engine is the per-connection relay state machine: accept a connection,
// peel one onion layer, and either deliver locally or forward to the
// next hop.
type Engine struct {
	cfg     NodeConfig
	keys    KeyHolder
	log     *logging.Logger
	metrics *metrics.PrometheusMetrics
	records DeliveryRecorder
	limiter *ratelimit.Limiter

	sem chan struct{}
}

// NewEngine builds a relay engine bounded by cfg.MaxWorkers concurrent
// connections. limiter may be nil to disable per-source-IP admission
// control.
func NewEngine(cfg NodeConfig, keys KeyHolder, log *logging.Logger, m *metrics.PrometheusMetrics, records DeliveryRecorder, limiter *ratelimit.Limiter) *Engine {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 256
	}
	return &Engine{
		cfg:     cfg,
		keys:    keys,
		log:     log.WithComponent("relay-engine"),
		metrics: m,
		records: records,
		limiter: limiter,
		sem:     make(chan struct{}, workers),
	}
}

// Serve accepts connections on listener until ctx is cancelled, dispatching
// each to the bounded worker pool.
func (e *Engine) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		if e.limiter != nil {
			host, _, splitErr := net.SplitHostPort(conn.RemoteAddr().String())
			if splitErr == nil && !e.limiter.Allow(host) {
				if e.metrics != nil {
					e.metrics.WorkerRejectTotal.Inc()
				}
				conn.Close()
				continue
			}
		}

		select {
		case e.sem <- struct{}{}:
			if e.metrics != nil {
				e.metrics.WorkerAdmitTotal.Inc()
				e.metrics.ActiveWorkers.Inc()
			}
			go e.handle(conn)
		default:
			if e.metrics != nil {
				e.metrics.WorkerRejectTotal.Inc()
			}
			conn.Close()
		}
	}
}

func (e *Engine) handle(conn net.Conn) {
	start := time.Now()
	defer func() {
		conn.Close()
		<-e.sem
		if e.metrics != nil {
			e.metrics.ActiveWorkers.Dec()
			e.metrics.ConnectionDuration.Observe(time.Since(start).Seconds())
		}
	}()

	peerLog := e.log.WithPeer(conn.RemoteAddr().String())

	readTimeout := e.cfg.ConnReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		peerLog.Warn().Err(err).Msg("setting read deadline")
	}

	maxSize := e.cfg.MaxPacketSize
	if maxSize <= 0 {
		maxSize = 64 * 1024
	}

	packet, err := readPacket(conn, maxSize)
	if err != nil {
		peerLog.Warn().Err(err).Msg("reading inbound packet")
		e.drop("read_error")
		return
	}

	nextHop, inner, err := onion.UnwrapLayer(e.keys.PrivateKey(), packet)
	if err != nil {
		peerLog.Warn().Err(err).Msg("unwrapping onion layer")
		e.drop("unwrap_error")
		if e.metrics != nil {
			e.metrics.RecordError("unwrap")
		}
		return
	}
	if e.metrics != nil {
		e.metrics.LayersUnwrapped.Inc()
	}

	if nextHop == onion.TerminalHop {
		e.deliver(peerLog, inner)
		return
	}
	e.forwardTo(peerLog, nextHop, inner)
}

func (e *Engine) deliver(log *logging.Logger, payload []byte) {
	log.Info().Msg("packet delivered locally")
	if e.metrics != nil {
		e.metrics.PacketsDelivered.Inc()
	}
	if e.records != nil {
		e.records.Record("RECEIVED", string(payload))
	}
}

func (e *Engine) forwardTo(log *logging.Logger, nextHop string, payload []byte) {
	hopLog := log.WithHop(nextHop)

	dialTimeout := e.cfg.ForwardDialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	if err := forward(nextHop, e.cfg.RouterPort, payload, dialTimeout); err != nil {
		hopLog.Warn().Err(err).Msg("forward failed")
		e.drop("forward_error")
		if e.metrics != nil {
			e.metrics.RecordError("forward")
		}
		return
	}

	hopLog.Info().Msg("packet forwarded")
	if e.metrics != nil {
		e.metrics.PacketsRelayed.Inc()
	}
	if e.records != nil {
		e.records.Record("RELAYED", nextHop)
	}
}

func (e *Engine) drop(reason string) {
	if e.metrics != nil {
		e.metrics.PacketsDropped.WithLabelValues(reason).Inc()
	}
}

// Send originates a packet: select a path, build the onion, and ship it
// to the first hop. destination is appended to the chosen path so the
// final onion layer is addressed to it. m may be nil, in which case no
// metrics are recorded.
func Send(snapshot onion.DirectorySnapshot, k int, selfPubKey *onion.PublicKey, destination string, payload []byte, cfg NodeConfig, randIntn func(int) int, m *metrics.PrometheusMetrics) error {
	if destination == onion.TerminalHop {
		return onion.ErrBadDirectoryEntry
	}

	path, err := onion.ChoosePath(snapshot, k, selfPubKey, randIntn, m)
	if err != nil {
		return err
	}
	fullPath := append(path, destination)

	lookup := func(host string) (*onion.PublicKey, error) {
		for _, entry := range snapshot.Entries {
			if entry.Host == host {
				return onion.DecodePublicKey(entry.PubKey)
			}
		}
		return nil, onion.ErrUnknownNode
	}

	layers, err := onion.BuildLayersForPath(fullPath, lookup)
	if err != nil {
		return err
	}

	packet, err := onion.BuildOnion(layers, payload, m)
	if err != nil {
		return err
	}

	dialTimeout := cfg.ForwardDialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return forward(fullPath[0], cfg.RouterPort, packet, dialTimeout)
}
