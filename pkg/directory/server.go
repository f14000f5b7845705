package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cepa-network/cepa-relay/internal/logging"
	"github.com/cepa-network/cepa-relay/internal/metrics"
	"github.com/cepa-network/cepa-relay/pkg/onion"
)

// Server is the minimal directory service: an append-only registry of
// {host, pub_key} pairs with a timestamp that advances on every read.
type Server struct {
	addr    string
	log     *logging.Logger
	metrics *metrics.PrometheusMetrics

	mu      sync.Mutex
	entries []onion.NodeDescriptor

	httpServer *http.Server
}

// NewServer builds a directory service listening on addr.
func NewServer(addr string, log *logging.Logger, m *metrics.PrometheusMetrics) *Server {
	return &Server{
		addr:    addr,
		log:     log.WithComponent("directory-server"),
		metrics: m,
	}
}

// Start serves the directory's three endpoints until Shutdown is called.
// It blocks, matching the net/http.Server.ListenAndServe convention.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/reset", s.handleReset)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	s.log.Info().Str("addr", s.addr).Msg("starting directory service")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.get(w, r)
	case http.MethodPost:
		s.post(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// get returns the current registry with the timestamp set to the current
// wall-clock second — the directory never persists its own timestamp
// between reads, matching the original prototype's behavior.
func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	entries := make([]onion.NodeDescriptor, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	snapshot := onion.DirectorySnapshot{
		Timestamp: uint64(time.Now().Unix()),
		Entries:   entries,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)

	if s.metrics != nil {
		s.metrics.DirectoryHTTPRequests.WithLabelValues(http.MethodGet, "/").Inc()
	}
}

// post appends a NodeDescriptor whose host is an IPv4 literal (anything
// else is rejected with 400): no deduplication, no authentication.
func (s *Server) post(w http.ResponseWriter, r *http.Request) {
	var descriptor onion.NodeDescriptor
	if err := json.NewDecoder(r.Body).Decode(&descriptor); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !onion.IsIPv4Literal(descriptor.Host) {
		http.Error(w, "host must be an IPv4 literal", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.entries = append(s.entries, descriptor)
	size := len(s.entries)
	s.mu.Unlock()

	s.log.Info().Str("host", descriptor.Host).Msg("node published")

	if s.metrics != nil {
		s.metrics.DirectoryHTTPRequests.WithLabelValues(http.MethodPost, "/").Inc()
		s.metrics.DirectoryRegistrySize.Set(float64(size))
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleReset empties the registry without advancing the timestamp — the
// next GET still reports the current wall-clock second regardless.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()

	s.log.Info().Msg("directory registry reset")

	if s.metrics != nil {
		s.metrics.DirectoryHTTPRequests.WithLabelValues(http.MethodGet, "/reset").Inc()
		s.metrics.DirectoryRegistrySize.Set(0)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Index has been reset"))
}
