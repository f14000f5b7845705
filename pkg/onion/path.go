package onion

import (
	"fmt"

	"github.com/cepa-network/cepa-relay/internal/metrics"
)

// ChoosePath selects k distinct forwarding hops from a directory snapshot,
// excluding the caller's own key and any entry whose host isn't a literal
// IPv4 address. A later entry repeating an already accepted host is
// skipped, so the chosen hosts are pairwise distinct. Selection proceeds by repeated swap-remove: pick a random
// index out of the remaining pool, move it to the result, swap the last
// pool entry into its place and shrink the pool by one. This gives each
// remaining candidate an equal chance of being picked next without
// re-scanning or reshuffling the whole pool on every draw.
//
// ChoosePath fails with ErrInsufficientNodes if the pool is exhausted
// before k hops have been chosen. m may be nil, in which case no metrics
// are recorded.
func ChoosePath(snapshot DirectorySnapshot, k int, selfPubKey *PublicKey, randIntn func(n int) int, m *metrics.PrometheusMetrics) ([]string, error) {
	pool := make([]NodeDescriptor, 0, len(snapshot.Entries))
	seen := make(map[string]bool, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		if !IsIPv4Literal(entry.Host) || seen[entry.Host] {
			continue
		}
		pk, err := DecodePublicKey(entry.PubKey)
		if err != nil {
			continue
		}
		if selfPubKey != nil && pk.Equal(selfPubKey) {
			continue
		}
		seen[entry.Host] = true
		pool = append(pool, entry)
	}

	if len(pool) < k {
		if m != nil {
			m.PathSelectFailures.WithLabelValues("insufficient_nodes").Inc()
		}
		return nil, fmt.Errorf("%w: have %d usable nodes, need %d", ErrInsufficientNodes, len(pool), k)
	}

	path := make([]string, 0, k)
	for i := 0; i < k; i++ {
		j := randIntn(len(pool))
		path = append(path, pool[j].Host)
		last := len(pool) - 1
		pool[j] = pool[last]
		pool = pool[:last]
	}
	return path, nil
}
