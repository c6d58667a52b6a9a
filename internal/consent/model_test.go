package consent

import (
	"testing"
	"time"
)

func TestGrantActiveAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * 24 * time.Hour)
	grant := &Grant{Start: start, End: end}

	tests := []struct {
		name    string
		at      time.Time
		revoked bool
		want    bool
	}{
		{"before window", start.Add(-time.Second), false, false},
		{"window opens inclusive", start, false, true},
		{"inside window", start.Add(15 * 24 * time.Hour), false, true},
		{"window closes exclusive", end, false, false},
		{"after window", end.Add(time.Hour), false, false},
		{"revoked inside window", start.Add(time.Hour), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant.Revoked = tt.revoked
			if got := grant.ActiveAt(tt.at); got != tt.want {
				t.Errorf("ActiveAt(%v) = %t, want %t", tt.at, got, tt.want)
			}
		})
	}
}

func TestGrantLabel(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	grant := &Grant{Start: start, End: end}

	if got := grant.Label(start.Add(time.Hour)); got != "active" {
		t.Errorf("inside window: label = %q, want active", got)
	}
	if got := grant.Label(end); got != "expired" {
		t.Errorf("at end: label = %q, want expired", got)
	}
	if got := grant.Label(start.Add(-time.Hour)); got != "scheduled" {
		t.Errorf("before start: label = %q, want scheduled", got)
	}
	grant.Revoked = true
	if got := grant.Label(start.Add(time.Hour)); got != "revoked" {
		t.Errorf("revoked: label = %q, want revoked", got)
	}
}
