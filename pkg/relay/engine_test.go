package relay

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cepa-network/cepa-relay/internal/logging"
	"github.com/cepa-network/cepa-relay/pkg/onion"
)

type fixedKey struct {
	priv *onion.PrivateKey
}

func (f fixedKey) PrivateKey() *onion.PrivateKey { return f.priv }

type recordingLog struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingLog) Record(kind, summary string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, kind+":"+summary)
}

func (r *recordingLog) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

func testCfg(port int) NodeConfig {
	return NodeConfig{
		RouterPort:         port,
		MaxPacketSize:      64 * 1024,
		MaxWorkers:         16,
		ConnReadTimeout:    5 * time.Second,
		ForwardDialTimeout: 2 * time.Second,
	}
}

func startNode(t *testing.T, host string, port int, priv *onion.PrivateKey) (*recordingLog, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		t.Fatalf("listen on %s:%d: %v", host, port, err)
	}

	records := &recordingLog{}
	logger := logging.NewLogger(logging.LogConfig{Level: "error", Format: "json"})
	engine := NewEngine(testCfg(port), fixedKey{priv: priv}, logger, nil, records, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Serve(ctx, listener)

	return records, func() {
		cancel()
		listener.Close()
	}
}

// TestThreeHopDeliverySucceeds exercises a full origin -> A -> B -> C
// (exit) run: the exit node's delivery log should show exactly the
// payload handed to it, and A/B's logs should show a single RELAYED
// entry each.
func TestThreeHopDeliverySucceeds(t *testing.T) {
	const port = 55601
	hostA, hostB, hostC := "127.0.0.11", "127.0.0.12", "127.0.0.13"

	privA, pubA, err := onion.GenerateKeyPair()
	if err != nil {
		t.Fatalf("keygen A: %v", err)
	}
	privB, pubB, err := onion.GenerateKeyPair()
	if err != nil {
		t.Fatalf("keygen B: %v", err)
	}
	privC, pubC, err := onion.GenerateKeyPair()
	if err != nil {
		t.Fatalf("keygen C: %v", err)
	}

	recA, stopA := startNode(t, hostA, port, privA)
	defer stopA()
	recB, stopB := startNode(t, hostB, port, privB)
	defer stopB()
	recC, stopC := startNode(t, hostC, port, privC)
	defer stopC()

	layers := []onion.LayerSpec{
		{NextHop: hostB, PubKey: pubA},
		{NextHop: hostC, PubKey: pubB},
		{NextHop: onion.TerminalHop, PubKey: pubC},
	}
	packet, err := onion.BuildOnion(layers, []byte("hello cepa"), nil)
	if err != nil {
		t.Fatalf("BuildOnion: %v", err)
	}

	if err := forward(hostA, port, packet, 2*time.Second); err != nil {
		t.Fatalf("originating to first hop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(recC.snapshot()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	gotC := recC.snapshot()
	if len(gotC) != 1 || gotC[0] != "RECEIVED:hello cepa" {
		t.Fatalf("exit node log = %v, want [RECEIVED:hello cepa]", gotC)
	}

	gotA := recA.snapshot()
	if len(gotA) != 1 || gotA[0] != "RELAYED:"+hostB {
		t.Fatalf("hop A log = %v", gotA)
	}

	gotB := recB.snapshot()
	if len(gotB) != 1 || gotB[0] != "RELAYED:"+hostC {
		t.Fatalf("hop B log = %v", gotB)
	}
}

func TestSendOriginatesThroughChosenPath(t *testing.T) {
	const port = 55602
	hostA, hostB := "127.0.0.21", "127.0.0.22"

	privA, pubA, err := onion.GenerateKeyPair()
	if err != nil {
		t.Fatalf("keygen A: %v", err)
	}
	privB, pubB, err := onion.GenerateKeyPair()
	if err != nil {
		t.Fatalf("keygen B: %v", err)
	}

	_, stopA := startNode(t, hostA, port, privA)
	defer stopA()
	recB, stopB := startNode(t, hostB, port, privB)
	defer stopB()

	snapshot := onion.DirectorySnapshot{
		Timestamp: 1,
		Entries: []onion.NodeDescriptor{
			{Host: hostA, PubKey: pubA.Encode()},
			{Host: hostB, PubKey: pubB.Encode()},
		},
	}

	cfg := testCfg(port)
	// Exclude B from the intermediate pool via self-exclusion so the
	// single intermediate hop is deterministically A, keeping this test
	// stable regardless of path-selection randomness.
	err = Send(snapshot, 1, pubB, hostB, []byte("direct payload"), cfg, rand.Intn, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(recB.snapshot()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := recB.snapshot()
	if len(got) != 1 || got[0] != "RECEIVED:direct payload" {
		t.Fatalf("destination log = %v", got)
	}
}
