package onion

import (
	"errors"
	"testing"

	"github.com/cepa-network/cepa-relay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func descriptorFor(t *testing.T, host string) (NodeDescriptor, *PrivateKey) {
	t.Helper()
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return NodeDescriptor{Host: host, PubKey: pub.Encode()}, priv
}

// sequentialIntn is a deterministic stand-in for math/rand.Intn in tests:
// it always picks index 0, so swap-remove takes the first entry, then the
// remaining entries in reverse insertion order.
func sequentialIntn(n int) int { return 0 }

func TestChoosePathExcludesSelf(t *testing.T) {
	selfDesc, selfPriv := descriptorFor(t, "10.0.0.1")
	a, _ := descriptorFor(t, "10.0.0.2")
	b, _ := descriptorFor(t, "10.0.0.3")
	c, _ := descriptorFor(t, "10.0.0.4")

	snapshot := DirectorySnapshot{Timestamp: 1, Entries: []NodeDescriptor{selfDesc, a, b, c}}

	path, err := ChoosePath(snapshot, 3, selfPriv.Public(), sequentialIntn, nil)
	if err != nil {
		t.Fatalf("ChoosePath: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("len(path) = %d, want 3", len(path))
	}
	for _, host := range path {
		if host == selfDesc.Host {
			t.Errorf("path contains self host %q", host)
		}
	}
}

func TestChoosePathProducesDistinctHops(t *testing.T) {
	_, selfPub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	entries := make([]NodeDescriptor, 0, 5)
	for i := 0; i < 5; i++ {
		d, _ := descriptorFor(t, "10.0.1."+string(rune('1'+i)))
		entries = append(entries, d)
	}
	snapshot := DirectorySnapshot{Timestamp: 1, Entries: entries}

	path, err := ChoosePath(snapshot, 3, selfPub, sequentialIntn, nil)
	if err != nil {
		t.Fatalf("ChoosePath: %v", err)
	}

	seen := make(map[string]bool, len(path))
	for _, host := range path {
		if seen[host] {
			t.Fatalf("duplicate host in path: %q", host)
		}
		seen[host] = true
	}
}

func TestChoosePathFailsWhenPoolTooSmall(t *testing.T) {
	a, _ := descriptorFor(t, "10.0.0.2")
	snapshot := DirectorySnapshot{Timestamp: 1, Entries: []NodeDescriptor{a}}

	_, err := ChoosePath(snapshot, 3, nil, sequentialIntn, nil)
	if !errors.Is(err, ErrInsufficientNodes) {
		t.Fatalf("err = %v, want ErrInsufficientNodes", err)
	}
}

func TestChoosePathIncrementsPathSelectFailures(t *testing.T) {
	a, _ := descriptorFor(t, "10.0.0.2")
	snapshot := DirectorySnapshot{Timestamp: 1, Entries: []NodeDescriptor{a}}

	m := metrics.NewPrometheusMetrics()
	if _, err := ChoosePath(snapshot, 3, nil, sequentialIntn, m); !errors.Is(err, ErrInsufficientNodes) {
		t.Fatalf("err = %v, want ErrInsufficientNodes", err)
	}

	if got := testutil.ToFloat64(m.PathSelectFailures.WithLabelValues("insufficient_nodes")); got != 1 {
		t.Fatalf("PathSelectFailures{reason=insufficient_nodes} = %v, want 1", got)
	}
}

func TestChoosePathSkipsNonIPv4Hosts(t *testing.T) {
	good, _ := descriptorFor(t, "10.0.0.2")
	bad, _ := descriptorFor(t, "not-an-ip")
	snapshot := DirectorySnapshot{Timestamp: 1, Entries: []NodeDescriptor{good, bad}}

	_, err := ChoosePath(snapshot, 1, nil, sequentialIntn, nil)
	if err != nil {
		t.Fatalf("ChoosePath: %v", err)
	}

	_, err = ChoosePath(snapshot, 2, nil, sequentialIntn, nil)
	if !errors.Is(err, ErrInsufficientNodes) {
		t.Fatalf("err = %v, want ErrInsufficientNodes with only one usable host", err)
	}
}
