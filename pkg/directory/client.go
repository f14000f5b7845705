// Package directory implements the Cepa directory client and service: a
// tiny HTTP-polled registry of {host, pub_key} pairs that nodes use to
// discover one another.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cepa-network/cepa-relay/internal/logging"
	"github.com/cepa-network/cepa-relay/internal/metrics"
	"github.com/cepa-network/cepa-relay/pkg/onion"
)

// Client periodically pulls the authoritative node list from a directory
// service and keeps a monotonically advancing local snapshot.
type Client struct {
	baseURL    string
	interval   time.Duration
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.PrometheusMetrics

	mu       sync.Mutex
	snapshot onion.DirectorySnapshot
}

// NewClient builds a directory client polling baseURL every interval.
func NewClient(baseURL string, interval time.Duration, logger *logging.Logger, m *metrics.PrometheusMetrics) *Client {
	return &Client{
		baseURL:  baseURL,
		interval: interval,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:   logger,
		metrics:  m,
		snapshot: onion.EmptySnapshot(),
	}
}

// Snapshot returns the most recently accepted directory snapshot.
func (c *Client) Snapshot() onion.DirectorySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Run drives the fixed-rate polling loop until ctx is cancelled. Scheduling
// uses absolute deadlines rather than fixed-delay sleeps: if a fetch takes
// longer than the interval, the next tick fires immediately instead of
// compounding a growing backlog of delay.
func (c *Client) Run(ctx context.Context) {
	next := time.Now()
	for {
		c.Pull(ctx)

		next = next.Add(c.interval)
		wait := time.Until(next)
		if wait < 0 {
			// Overran the interval: pull again now and measure later
			// deadlines from here, so at most one pull runs late.
			wait = 0
			next = time.Now()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Pull performs a single fetch-and-maybe-replace cycle. It never returns an
// error: transport, decode, and status failures are logged and absorbed so
// the polling loop never terminates on a bad tick.
func (c *Client) Pull(ctx context.Context) {
	snapshot, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("directory poll failed")
		if c.metrics != nil {
			c.metrics.DirectoryPollTotal.WithLabelValues("failure").Inc()
		}
		return
	}

	c.mu.Lock()
	if snapshot.Timestamp > c.snapshot.Timestamp {
		c.snapshot = snapshot
	}
	held := c.snapshot
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.DirectoryPollTotal.WithLabelValues("success").Inc()
		c.metrics.SnapshotTimestamp.Set(float64(held.Timestamp))
		c.metrics.SnapshotEntries.Set(float64(len(held.Entries)))
	}
}

func (c *Client) fetch(ctx context.Context) (onion.DirectorySnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return onion.DirectorySnapshot{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return onion.DirectorySnapshot{}, fmt.Errorf("requesting snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return onion.DirectorySnapshot{}, fmt.Errorf("directory returned status %s", resp.Status)
	}

	var snapshot onion.DirectorySnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return onion.DirectorySnapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snapshot, nil
}

// Publish registers host and pubKeyEncoded with the directory via POST /.
func (c *Client) Publish(ctx context.Context, host string, pubKeyEncoded string) error {
	descriptor := onion.NodeDescriptor{Host: host, PubKey: pubKeyEncoded}
	body, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("marshalling descriptor: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publishing descriptor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("directory rejected publish with status %s", resp.Status)
	}
	return nil
}
