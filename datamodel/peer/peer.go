package peer

import (
	"time"
)

// Address identifies a peer endpoint over the anonymizing transport (host:port).
type Address = string

// Record is the registry's view of a single peer.
type Record struct {
	OnionAddress    string    // Address the peer declared for itself
	LastStateChange time.Time // Last successful contact or stale transition
	Stale           bool      // Unreachable after exhausting probe attempts
}

// DueForProbe reports whether the record's last transition is older than cooldown.
func (r Record) DueForProbe(now time.Time, cooldown time.Duration) bool {
	return now.Sub(r.LastStateChange) > cooldown
}

// MarkStale returns a copy of r flagged stale at the given time.
func (r Record) MarkStale(now time.Time) Record {
	r.Stale = true
	r.LastStateChange = now
	return r
}

// Alive builds the record written after a peer answered a probe.
func Alive(address string, now time.Time) Record {
	return Record{
		OnionAddress:    address,
		LastStateChange: now,
		Stale:           false,
	}
}
