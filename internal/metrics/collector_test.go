package metrics

import (
	"errors"
	"testing"
)

func TestCollectorRecordsRuleCounters(t *testing.T) {
	c := NewCollector(true)
	c.RecordMatch(1, "appId=firefox")
	c.RecordMove(1, "appId=firefox", nil)
	c.RecordMove(1, "appId=firefox", errors.New("no such workspace"))
	c.RecordMatch(0, "titleRegex=^Term")
	snap := c.Snapshot()
	if !snap.Enabled {
		t.Fatalf("expected snapshot to be enabled")
	}
	if snap.Totals.Matched != 2 || snap.Totals.Moved != 1 || snap.Totals.MoveErrors != 1 {
		t.Fatalf("unexpected totals: %#v", snap.Totals)
	}
	if len(snap.Rules) != 2 {
		t.Fatalf("expected two rules in snapshot, got %d", len(snap.Rules))
	}
	if snap.Rules[0].Index != 0 || snap.Rules[1].Index != 1 {
		t.Fatalf("rules not sorted by index: %#v", snap.Rules)
	}
	rule := snap.Rules[1]
	if rule.Rule != "appId=firefox" || rule.Matched != 1 || rule.Moved != 1 || rule.MoveErrors != 1 {
		t.Fatalf("unexpected rule counters: %#v", rule)
	}
	if rule.LastMatched.IsZero() || rule.LastErrored.IsZero() {
		t.Fatalf("expected timestamps to be recorded: %#v", rule)
	}
}

func TestCollectorRecordsActionCounters(t *testing.T) {
	c := NewCollector(true)
	c.RecordScheduled()
	c.RecordScheduled()
	c.RecordFired()
	c.RecordFailed()
	c.RecordCancelled(1)
	c.RecordCancelled(0)
	c.RecordSpawn(nil)
	c.RecordSpawn(errors.New("exec: not found"))
	got := c.Snapshot().Actions
	want := ActionTotals{Scheduled: 2, Fired: 1, Failed: 1, Cancelled: 1, Spawned: 1, SpawnErrors: 1}
	if got != want {
		t.Fatalf("actions = %#v, want %#v", got, want)
	}
}

func TestCollectorToggle(t *testing.T) {
	c := NewCollector(false)
	c.RecordMatch(0, "any")
	c.RecordScheduled()
	if snap := c.Snapshot(); snap.Enabled || len(snap.Rules) != 0 || snap.Actions.Scheduled != 0 {
		t.Fatalf("expected disabled snapshot: %#v", snap)
	}
	c.SetEnabled(true)
	c.RecordMatch(0, "any")
	if snap := c.Snapshot(); len(snap.Rules) != 1 || snap.Started.IsZero() {
		t.Fatalf("expected counters after enabling: %#v", snap)
	}
	c.SetEnabled(false)
	if snap := c.Snapshot(); snap.Enabled || len(snap.Rules) != 0 {
		t.Fatalf("expected reset after disabling: %#v", snap)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordScheduled()
	c.RecordMatch(0, "x")
	if c.Enabled() {
		t.Fatalf("nil collector reported enabled")
	}
	if snap := c.Snapshot(); snap.Enabled {
		t.Fatalf("unexpected snapshot from nil collector: %#v", snap)
	}
}
