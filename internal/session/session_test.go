package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Maximelego/custom-workspaces/internal/clock"
	"github.com/Maximelego/custom-workspaces/internal/config"
	"github.com/Maximelego/custom-workspaces/internal/desktop/desktoptest"
	"github.com/Maximelego/custom-workspaces/internal/metrics"
	"github.com/Maximelego/custom-workspaces/internal/rules"
	"github.com/Maximelego/custom-workspaces/internal/schedule"
	"github.com/Maximelego/custom-workspaces/internal/sequence"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

type inlineExecutor struct{}

func (inlineExecutor) Post(fn func()) { fn() }

const sampleConfig = `{
  // two groups, one rule
  "workspaceCount": 3,
  "startupDelayMs": 1000,
  "stepDelayMs": 500,
  "focusWorkspaceIndexAfter": 0,
  "workspaces": [
    {"index": 0, "commands": ["a"]},
    {"index": 1, "commands": []},
  ],
  "dynamicRulesEnabled": true,
  "dynamicRules": [
    {"match": {"appId": "kitty"}, "workspaceIndex": 2}
  ]
}`

type harness struct {
	ctrl  *Controller
	clk   *clock.FakeClock
	fake  *desktoptest.Fake
	sched *schedule.Scheduler
	logs  *bytes.Buffer
	loads int
	doc   string
}

func newHarness(t *testing.T, doc string) *harness {
	t.Helper()
	h := &harness{logs: &bytes.Buffer{}, doc: doc}
	h.clk = clock.Fake(time.Unix(0, 0))
	logger := util.NewLoggerWithWriter(util.LevelDebug, h.logs)
	collector := metrics.NewCollector(true)
	h.sched = schedule.New(h.clk, inlineExecutor{}, logger, collector)
	h.fake = desktoptest.New()
	ctrl, err := New(Options{
		Loader: func() (*config.Config, error) {
			h.loads++
			return config.Parse([]byte(h.doc), config.FormatJSON)
		},
		ConfigPath: "/tmp/config.json",
		Desktop:    h.fake,
		Spawner:    h.fake,
		Scheduler:  h.sched,
		Logger:     logger,
		Metrics:    collector,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.ctrl = ctrl
	return h
}

func (h *harness) ops() []string {
	var out []string
	for _, c := range h.fake.Calls() {
		out = append(out, c.Op)
	}
	return out
}

func TestEnableBootstraps(t *testing.T) {
	h := newHarness(t, sampleConfig)
	if err := h.ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	st := h.ctrl.Status()
	if !st.Bootstrapped || !st.DynamicRulesEnabled || st.RuleCount != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.PendingActions != 4 || st.ScheduledActions != 4 {
		t.Fatalf("expected 4 startup actions, got pending=%d scheduled=%d", st.PendingActions, st.ScheduledActions)
	}
	if st.ConfigPath != "/tmp/config.json" {
		t.Fatalf("unexpected config path %q", st.ConfigPath)
	}

	h.clk.Advance(3 * time.Second)
	want := []string{"policy", "activate", "spawn", "activate", "activate"}
	if diff := cmp.Diff(want, h.ops()); diff != "" {
		t.Fatalf("unexpected ops (-want +got):\n%s", diff)
	}
}

func TestEnableTwiceBootstrapsOnce(t *testing.T) {
	h := newHarness(t, sampleConfig)
	for i := 0; i < 2; i++ {
		if err := h.ctrl.Enable(context.Background()); err != nil {
			t.Fatalf("Enable #%d: %v", i, err)
		}
	}
	h.clk.Advance(time.Minute)
	if h.loads != 1 {
		t.Fatalf("expected config to load once, got %d", h.loads)
	}
	if subs, _ := h.fake.SubscriptionCounts(); subs != 1 {
		t.Fatalf("expected one subscription, got %d", subs)
	}
	if got := len(h.fake.Calls()); got != 5 {
		t.Fatalf("expected a single bootstrap sequence (5 calls), got %d: %v", got, h.ops())
	}
	if !strings.Contains(h.logs.String(), "already bootstrapped") {
		t.Fatalf("expected second enable to be logged")
	}
}

func TestEnableWithMalformedConfigDoesNothing(t *testing.T) {
	h := newHarness(t, `{"workspaceCount": 3`)
	err := h.ctrl.Enable(context.Background())
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	h.clk.Advance(time.Minute)
	if got := h.fake.Calls(); len(got) != 0 {
		t.Fatalf("expected no side effects, got %+v", got)
	}
	if h.fake.Subscribed() {
		t.Fatalf("expected no subscription")
	}
	if st := h.ctrl.Status(); st.Bootstrapped || st.PendingActions != 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestEnableAfterFailedLoadRetries(t *testing.T) {
	doc := `{"workspaceCount": 0}`
	h := newHarness(t, "")
	h.ctrl.loader = func() (*config.Config, error) {
		h.loads++
		return config.Parse([]byte(doc), config.FormatJSON)
	}
	if err := h.ctrl.Enable(context.Background()); err == nil {
		t.Fatalf("expected invalid workspace count to fail")
	}
	doc = sampleConfig
	if err := h.ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable after fix: %v", err)
	}
	if !h.ctrl.Status().Bootstrapped {
		t.Fatalf("expected session to bootstrap after the config was fixed")
	}
}

func TestLoaderErrorIsWrapped(t *testing.T) {
	h := newHarness(t, sampleConfig)
	h.ctrl.loader = func() (*config.Config, error) { return nil, errors.New("disk on fire") }
	err := h.ctrl.Enable(context.Background())
	if !errors.Is(err, config.ErrConfiguration) || !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("expected wrapped configuration error, got %v", err)
	}
}

func TestDisableCancelsEverything(t *testing.T) {
	h := newHarness(t, sampleConfig)
	if err := h.ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.clk.Advance(1200 * time.Millisecond)
	h.fake.AddWindow("w1", rules.Window{AppID: "kitty"})
	h.fake.Emit("w1")

	h.ctrl.Disable()
	h.clk.Advance(time.Minute)

	want := []string{"policy", "activate"}
	if diff := cmp.Diff(want, h.ops()); diff != "" {
		t.Fatalf("unexpected ops after disable (-want +got):\n%s", diff)
	}
	st := h.ctrl.Status()
	if st.Bootstrapped || st.DynamicRulesEnabled || st.PendingActions != 0 {
		t.Fatalf("unexpected status after disable: %+v", st)
	}
	if h.fake.Subscribed() {
		t.Fatalf("expected window events to be unsubscribed")
	}
}

func TestDisableIsIdempotent(t *testing.T) {
	h := newHarness(t, sampleConfig)
	h.ctrl.Disable()
	h.ctrl.Disable()
	if len(h.fake.Calls()) != 0 {
		t.Fatalf("disable on a fresh controller must not touch the desktop")
	}
	if err := h.ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.ctrl.Disable()
	h.ctrl.Disable()
	if _, unsubs := h.fake.SubscriptionCounts(); unsubs != 1 {
		t.Fatalf("expected one unsubscribe, got %d", unsubs)
	}
}

func TestDisableThenEnableBootstrapsAgain(t *testing.T) {
	h := newHarness(t, sampleConfig)
	if err := h.ctrl.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	h.ctrl.Disable()
	if err := h.ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if h.loads != 2 {
		t.Fatalf("expected two loads, got %d", h.loads)
	}
	h.clk.Advance(time.Minute)
	policies := 0
	for _, op := range h.ops() {
		if op == "policy" {
			policies++
		}
	}
	if policies != 2 {
		t.Fatalf("expected two bootstrap sequences, got %d policy calls", policies)
	}
}

func TestRulesDisabledSkipsSubscription(t *testing.T) {
	h := newHarness(t, `{"dynamicRulesEnabled": false, "dynamicRules": [{"match": {"appId": "kitty"}}]}`)
	if err := h.ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if h.fake.Subscribed() || h.ctrl.Status().DynamicRulesEnabled {
		t.Fatalf("dynamic rules should stay off")
	}
}

func TestEnabledWithoutRulesSkipsSubscription(t *testing.T) {
	h := newHarness(t, `{"dynamicRulesEnabled": true}`)
	if err := h.ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if h.fake.Subscribed() {
		t.Fatalf("no rules means no subscription")
	}
}

func TestSubscribeFailureStillRunsPlaylist(t *testing.T) {
	h := newHarness(t, sampleConfig)
	h.fake.SubscribeErr = errors.New("no event socket")
	if err := h.ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.clk.Advance(time.Minute)
	if len(h.fake.Calls()) != 5 {
		t.Fatalf("expected playlist to run, got %v", h.ops())
	}
}

func TestPlan(t *testing.T) {
	h := newHarness(t, sampleConfig)
	plan, err := h.ctrl.Plan()
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []sequence.Step{
		{Kind: sequence.StepActivate, Offset: time.Second},
		{Kind: sequence.StepSpawn, Offset: 1500 * time.Millisecond, Command: "a"},
		{Kind: sequence.StepActivate, Offset: 2 * time.Second, Workspace: 1},
		{Kind: sequence.StepFocus, Offset: 3 * time.Second},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Fatalf("unexpected plan (-want +got):\n%s", diff)
	}
	if h.ctrl.Status().Bootstrapped {
		t.Fatalf("Plan must not bootstrap the session")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error for empty options")
	}
}

func TestReloadWithInvalidConfigKeepsRunningSession(t *testing.T) {
	h := newHarness(t, sampleConfig)
	if err := h.ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.clk.Advance(1200 * time.Millisecond)
	before := h.ctrl.Status()

	h.doc = `{"workspaceCount": 0}`
	err := h.ctrl.Reload(context.Background())
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	after := h.ctrl.Status()
	if !after.Bootstrapped || !after.DynamicRulesEnabled || after.PendingActions != before.PendingActions {
		t.Fatalf("running session was torn down: before %+v after %+v", before, after)
	}
	if !h.fake.Subscribed() {
		t.Fatalf("expected window events to stay subscribed")
	}
	if !strings.Contains(h.logs.String(), "reload rejected; keeping the running session") {
		t.Fatalf("expected rejection in logs, got:\n%s", h.logs.String())
	}

	h.clk.Advance(time.Minute)
	want := []string{"policy", "activate", "spawn", "activate", "activate"}
	if diff := cmp.Diff(want, h.ops()); diff != "" {
		t.Fatalf("remaining startup actions should still run (-want +got):\n%s", diff)
	}
}

func TestReloadAppliesNewConfig(t *testing.T) {
	h := newHarness(t, sampleConfig)
	if err := h.ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.doc = `{"workspaceCount": 2, "startupDelayMs": 0, "stepDelayMs": 0}`
	if err := h.ctrl.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	st := h.ctrl.Status()
	if !st.Bootstrapped || st.DynamicRulesEnabled || st.ScheduledActions != 1 {
		t.Fatalf("unexpected status after reload: %+v", st)
	}
	if cfg := h.ctrl.Config(); cfg == nil || cfg.WorkspaceCount != 2 {
		t.Fatalf("expected reloaded config to be active, got %+v", cfg)
	}
}

func TestStatusWireNames(t *testing.T) {
	h := newHarness(t, sampleConfig)
	data, err := json.Marshal(h.ctrl.Status())
	if err != nil {
		t.Fatalf("marshal status: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	for _, key := range []string{"bootstrapped", "dynamicRulesEnabled", "ruleCount", "pendingActions", "scheduledActions", "configPath", "metrics"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("missing %q in %s", key, data)
		}
	}
}
