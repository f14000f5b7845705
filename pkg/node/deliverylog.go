// Package node implements the Cepa node runtime: it owns the private
// key, the directory snapshot, and the delivery log, and coordinates the
// directory client and relay engine around them.
package node

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryRecord is a single append-only entry in a node's delivery log.
type DeliveryRecord struct {
	ID         string
	ReceivedAt time.Time
	Kind       string // SENT, RECEIVED, or RELAYED
	Summary    string
}

// DeliveryLog is an append-only log of everything a node has sent,
// received, or relayed during the process lifetime. It holds no lock of
// its own — callers (the node runtime) serialize access alongside the
// keypair under one coarse mutex.
type DeliveryLog struct {
	records []DeliveryRecord
}

// NewDeliveryLog returns an empty delivery log.
func NewDeliveryLog() *DeliveryLog {
	return &DeliveryLog{}
}

// append adds a new entry stamped with the current time and a fresh UUID.
func (d *DeliveryLog) append(kind, summary string) {
	d.records = append(d.records, DeliveryRecord{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now(),
		Kind:       kind,
		Summary:    summary,
	})
}

// entries returns a copy of the log's current contents.
func (d *DeliveryLog) entries() []DeliveryRecord {
	out := make([]DeliveryRecord, len(d.records))
	copy(out, d.records)
	return out
}

// flush clears the log.
func (d *DeliveryLog) flush() {
	d.records = nil
}
