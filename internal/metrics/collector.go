package metrics

import (
	"sort"
	"sync"
	"time"
)

// Collector aggregates counters for scheduled actions and dynamic rules.
type Collector struct {
	mu      sync.RWMutex
	enabled bool
	started time.Time
	actions ActionTotals
	rules   map[int]*RuleMetrics
}

// ActionTotals counts scheduler and spawn outcomes.
type ActionTotals struct {
	Scheduled   uint64 `json:"scheduled"`
	Fired       uint64 `json:"fired"`
	Failed      uint64 `json:"failed"`
	Cancelled   uint64 `json:"cancelled"`
	Spawned     uint64 `json:"spawned"`
	SpawnErrors uint64 `json:"spawnErrors"`
}

// RuleMetrics captures per-rule counters tracked by the collector.
type RuleMetrics struct {
	Index       int       `json:"index"`
	Rule        string    `json:"rule"`
	Matched     uint64    `json:"matched"`
	Moved       uint64    `json:"moved"`
	MoveErrors  uint64    `json:"moveErrors"`
	LastMatched time.Time `json:"lastMatched,omitempty"`
	LastErrored time.Time `json:"lastErrored,omitempty"`
}

// Totals aggregates rule counters across all rules in a snapshot.
type Totals struct {
	Matched    uint64 `json:"matched"`
	Moved      uint64 `json:"moved"`
	MoveErrors uint64 `json:"moveErrors"`
}

// Snapshot is the serializable view of the current metrics state.
type Snapshot struct {
	Enabled bool          `json:"enabled"`
	Started time.Time     `json:"started,omitempty"`
	Actions ActionTotals  `json:"actions"`
	Totals  Totals        `json:"totals"`
	Rules   []RuleMetrics `json:"rules,omitempty"`
}

// NewCollector returns a collector with the provided enabled state.
func NewCollector(enabled bool) *Collector {
	c := &Collector{}
	c.SetEnabled(enabled)
	return c
}

// Enabled reports whether collection is currently active.
func (c *Collector) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles collection, resetting counters when enabling.
func (c *Collector) SetEnabled(enabled bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	c.actions = ActionTotals{}
	if !enabled {
		c.rules = nil
		c.started = time.Time{}
		return
	}
	c.started = time.Now()
	c.rules = make(map[int]*RuleMetrics)
}

func (c *Collector) RecordScheduled() {
	c.updateActions(func(a *ActionTotals) { a.Scheduled++ })
}

func (c *Collector) RecordFired() {
	c.updateActions(func(a *ActionTotals) { a.Fired++ })
}

func (c *Collector) RecordFailed() {
	c.updateActions(func(a *ActionTotals) { a.Failed++ })
}

func (c *Collector) RecordCancelled(n int) {
	if n <= 0 {
		return
	}
	c.updateActions(func(a *ActionTotals) { a.Cancelled += uint64(n) })
}

// RecordSpawn counts a spawn attempt and whether it launched.
func (c *Collector) RecordSpawn(err error) {
	c.updateActions(func(a *ActionTotals) {
		if err != nil {
			a.SpawnErrors++
			return
		}
		a.Spawned++
	})
}

// RecordMatch increments the matched counter for a rule.
func (c *Collector) RecordMatch(index int, rule string) {
	c.updateRule(index, rule, func(metrics *RuleMetrics, now time.Time) {
		metrics.Matched++
		metrics.LastMatched = now
	})
}

// RecordMove counts the outcome of relocating a window for a rule.
func (c *Collector) RecordMove(index int, rule string, err error) {
	c.updateRule(index, rule, func(metrics *RuleMetrics, now time.Time) {
		if err != nil {
			metrics.MoveErrors++
			metrics.LastErrored = now
			return
		}
		metrics.Moved++
	})
}

func (c *Collector) updateActions(mutate func(*ActionTotals)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	mutate(&c.actions)
}

func (c *Collector) updateRule(index int, rule string, mutate func(*RuleMetrics, time.Time)) {
	if c == nil || mutate == nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	if c.rules == nil {
		c.rules = make(map[int]*RuleMetrics)
	}
	metrics, exists := c.rules[index]
	if !exists {
		metrics = &RuleMetrics{Index: index}
		c.rules[index] = metrics
	}
	metrics.Rule = rule
	mutate(metrics, now)
}

// Snapshot returns the current counters for serialization or display.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{Enabled: c.enabled}
	if !c.enabled {
		return snap
	}
	snap.Started = c.started
	snap.Actions = c.actions
	if len(c.rules) == 0 {
		return snap
	}
	snap.Rules = make([]RuleMetrics, 0, len(c.rules))
	for _, metrics := range c.rules {
		if metrics == nil {
			continue
		}
		clone := *metrics
		snap.Rules = append(snap.Rules, clone)
		snap.Totals.Matched += clone.Matched
		snap.Totals.Moved += clone.Moved
		snap.Totals.MoveErrors += clone.MoveErrors
	}
	sort.Slice(snap.Rules, func(i, j int) bool {
		return snap.Rules[i].Index < snap.Rules[j].Index
	})
	return snap
}
