package voice

import (
	"testing"
	"time"
)

func TestTouchAndLookup(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Touch("D", "CA123")

	sid, ok := r.ActiveCallSID("D")
	if !ok || sid != "CA123" {
		t.Errorf("ActiveCallSID(D) = %q, %v, want CA123, true", sid, ok)
	}
	if _, ok := r.ActiveCallSID("E"); ok {
		t.Error("unknown sender reported active")
	}
}

func TestTouchOverwritesCallSID(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Touch("D", "CA123")
	r.Touch("D", "CA456")

	sid, ok := r.ActiveCallSID("D")
	if !ok || sid != "CA456" {
		t.Errorf("ActiveCallSID(D) = %q, %v, want CA456, true", sid, ok)
	}
}

func TestRemoveByCallSID(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Touch("D", "CA123")
	r.Touch("E", "CA456")

	r.Remove("CA123")

	if _, ok := r.ActiveCallSID("D"); ok {
		t.Error("removed session still active")
	}
	if sid, ok := r.ActiveCallSID("E"); !ok || sid != "CA456" {
		t.Errorf("unrelated session disturbed: %q, %v", sid, ok)
	}
}

// TestRemoveDeletesAllMatches verifies the scan drops every entry holding
// the call sid, not just the first.
func TestRemoveDeletesAllMatches(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Touch("D", "CA123")
	r.Touch("E", "CA123")

	r.Remove("CA123")

	if _, ok := r.ActiveCallSID("D"); ok {
		t.Error("session D survived removal")
	}
	if _, ok := r.ActiveCallSID("E"); ok {
		t.Error("session E survived removal")
	}
}

func TestInactivityExpiry(t *testing.T) {
	r := NewRegistry(0)
	r.Touch("D", "CA123")

	if _, ok := r.ActiveCallSID("D"); ok {
		t.Error("session with zero timeout must be expired on read")
	}
}

func TestDistinctSendersKeepDistinctSessions(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Touch("D", "CA1")
	r.Touch("E", "CA2")

	if sid, _ := r.ActiveCallSID("D"); sid != "CA1" {
		t.Errorf("sender D sid = %q, want CA1", sid)
	}
	if sid, _ := r.ActiveCallSID("E"); sid != "CA2" {
		t.Errorf("sender E sid = %q, want CA2", sid)
	}
}
