package onion

import "github.com/cepa-network/cepa-relay/internal/metrics"

// BuildOnion composes len(layers) nested onion layers over payload.
// Construction is innermost-first: the last entry in layers is wrapped
// first (around the raw payload), then each preceding entry wraps the
// result, so the outermost returned bytes are addressed to layers[0]. m
// may be nil, in which case no metrics are recorded.
func BuildOnion(layers []LayerSpec, payload []byte, m *metrics.PrometheusMetrics) ([]byte, error) {
	current := payload
	for i := len(layers) - 1; i >= 0; i-- {
		wrapped, err := WrapLayer(layers[i].PubKey, layers[i].NextHop, current)
		if err != nil {
			return nil, err
		}
		current = wrapped
		if m != nil {
			m.LayersWrapped.Inc()
		}
	}
	return current, nil
}

// BuildLayersForPath walks a forwarding path (intermediates plus final
// destination) and produces the LayerSpec sequence BuildOnion expects:
// position i forwards to position i+1, and the last position forwards to
// TerminalHop. lookupPubKey resolves every position's address to its
// published key, including the destination — the send() flow requires
// the destination itself to be directory-registered, since the onion's
// last layer must still be RSA-encrypted to somebody's key.
func BuildLayersForPath(path []string, lookupPubKey func(host string) (*PublicKey, error)) ([]LayerSpec, error) {
	layers := make([]LayerSpec, len(path))
	for i, host := range path {
		pk, err := lookupPubKey(host)
		if err != nil {
			return nil, err
		}
		forwardTo := TerminalHop
		if i+1 < len(path) {
			forwardTo = path[i+1]
		}
		layers[i] = LayerSpec{NextHop: forwardTo, PubKey: pk}
	}
	return layers, nil
}
