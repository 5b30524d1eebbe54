package peer

import (
	"testing"
	"time"
)

func TestDueForProbe(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	cooldown := 15 * time.Minute

	cases := []struct {
		age  time.Duration
		want bool
	}{
		{0, false},
		{cooldown - time.Second, false},
		{cooldown, false},
		{cooldown + time.Nanosecond, true},
		{time.Hour, true},
	}

	for _, c := range cases {
		r := Record{LastStateChange: now.Add(-c.age)}
		if got := r.DueForProbe(now, cooldown); got != c.want {
			t.Errorf("DueForProbe with age %v = %v, want %v", c.age, got, c.want)
		}
	}
}

func TestMarkStaleKeepsAddress(t *testing.T) {
	then := time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC)
	now := then.Add(time.Hour)

	r := Alive("peerX.onion:9000", then)
	s := r.MarkStale(now)

	if !s.Stale || s.OnionAddress != r.OnionAddress || !s.LastStateChange.Equal(now) {
		t.Fatalf("unexpected stale record: %+v", s)
	}
	if r.Stale {
		t.Fatal("MarkStale modified the original record")
	}
}
