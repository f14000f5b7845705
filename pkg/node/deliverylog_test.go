package node

import "testing"

func TestDeliveryLogAppendAndEntries(t *testing.T) {
	log := NewDeliveryLog()
	log.append("SENT", "payload to 10.0.0.1")
	log.append("RELAYED", "10.0.0.2")

	entries := log.entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Kind != "SENT" || entries[0].Summary != "payload to 10.0.0.1" {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if entries[0].ID == "" {
		t.Fatal("entries[0].ID is empty")
	}
	if entries[0].ID == entries[1].ID {
		t.Fatal("entries got duplicate IDs")
	}
}

func TestDeliveryLogEntriesReturnsCopy(t *testing.T) {
	log := NewDeliveryLog()
	log.append("RECEIVED", "hello")

	entries := log.entries()
	entries[0].Summary = "tampered"

	if got := log.entries()[0].Summary; got != "hello" {
		t.Fatalf("entries() returned a view, not a copy: got %q", got)
	}
}

func TestDeliveryLogFlushClears(t *testing.T) {
	log := NewDeliveryLog()
	log.append("SENT", "a")
	log.append("SENT", "b")
	log.flush()

	if got := log.entries(); len(got) != 0 {
		t.Fatalf("entries after flush = %v, want empty", got)
	}
}
