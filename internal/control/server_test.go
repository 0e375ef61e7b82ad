package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Maximelego/custom-workspaces/internal/sequence"
	"github.com/Maximelego/custom-workspaces/internal/session"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

type fakeSession struct {
	mu        sync.Mutex
	enabled   bool
	enables   int
	disables  int
	reloads   int
	enableErr error
	plan      []sequence.Step
}

func (f *fakeSession) Enable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enables++
	if f.enableErr != nil {
		return f.enableErr
	}
	f.enabled = true
	return nil
}

func (f *fakeSession) Disable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disables++
	f.enabled = false
}

func (f *fakeSession) Reload(ctx context.Context) error {
	f.mu.Lock()
	f.reloads++
	f.mu.Unlock()
	f.Disable()
	return f.Enable(ctx)
}

func (f *fakeSession) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Status{Bootstrapped: f.enabled, RuleCount: 2, PendingActions: 3, ConfigPath: "/cfg.json"}
}

func (f *fakeSession) Plan() ([]sequence.Step, error) {
	return f.plan, nil
}

func roundTrip(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var resp Response
	go func() {
		defer wg.Done()
		if err := json.NewEncoder(clientConn).Encode(req); err != nil {
			t.Errorf("encode request: %v", err)
			return
		}
		if err := json.NewDecoder(clientConn).Decode(&resp); err != nil {
			t.Errorf("decode response: %v", err)
		}
	}()
	srv.handle(context.Background(), serverConn)
	wg.Wait()
	return resp
}

func newTestServer(t *testing.T, sess Session, exec Executor) *Server {
	t.Helper()
	logger := util.NewLoggerWithWriter(util.LevelError, io.Discard)
	srv, err := NewServer(sess, exec, logger, "/unused/control.sock")
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return srv
}

func TestHandleStatus(t *testing.T) {
	sess := &fakeSession{enabled: true}
	srv := newTestServer(t, sess, nil)
	resp := roundTrip(t, srv, Request{Action: ActionStatus})
	if resp.Status != StatusOK {
		t.Fatalf("expected ok status, got %s (error=%s)", resp.Status, resp.Error)
	}
	data, _ := json.Marshal(resp.Data)
	var status session.Status
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Bootstrapped || status.RuleCount != 2 || status.PendingActions != 3 || status.ConfigPath != "/cfg.json" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestHandlePlan(t *testing.T) {
	sess := &fakeSession{plan: []sequence.Step{
		{Kind: sequence.StepActivate, Offset: time.Second},
		{Kind: sequence.StepSpawn, Offset: 1500 * time.Millisecond, Command: "kitty"},
	}}
	srv := newTestServer(t, sess, nil)
	resp := roundTrip(t, srv, Request{Action: ActionPlan})
	if resp.Status != StatusOK {
		t.Fatalf("expected ok status, got %s (error=%s)", resp.Status, resp.Error)
	}
	data, _ := json.Marshal(resp.Data)
	var result PlanResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	want := PlanResult{Steps: []PlanStep{
		{Kind: "activate", OffsetMs: 1000},
		{Kind: "spawn", OffsetMs: 1500, Command: "kitty"},
	}}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Fatalf("unexpected plan (-want +got):\n%s", diff)
	}
}

func TestHandleLifecycleRunsThroughExecutor(t *testing.T) {
	sess := &fakeSession{}
	calls := 0
	exec := func(_ context.Context, fn func() error) error {
		calls++
		return fn()
	}
	srv := newTestServer(t, sess, exec)
	for _, action := range []string{ActionEnable, ActionDisable, ActionReload} {
		if resp := roundTrip(t, srv, Request{Action: action}); resp.Status != StatusOK {
			t.Fatalf("%s: expected ok status, got %s (error=%s)", action, resp.Status, resp.Error)
		}
	}
	if calls != 3 {
		t.Fatalf("expected 3 executor calls, got %d", calls)
	}
	if sess.enables != 2 || sess.disables != 2 || sess.reloads != 1 {
		t.Fatalf("unexpected lifecycle counts: enables=%d disables=%d reloads=%d", sess.enables, sess.disables, sess.reloads)
	}
}

func TestHandleEnableError(t *testing.T) {
	sess := &fakeSession{enableErr: errors.New("configuration error: decode config")}
	srv := newTestServer(t, sess, nil)
	resp := roundTrip(t, srv, Request{Action: ActionEnable})
	if resp.Status != StatusError || resp.Error != "configuration error: decode config" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleUnknownAction(t *testing.T) {
	srv := newTestServer(t, &fakeSession{}, nil)
	resp := roundTrip(t, srv, Request{Action: "mode.set"})
	if resp.Status != StatusError || resp.Error != `unknown action "mode.set"` {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDefaultSocketPath(t *testing.T) {
	t.Setenv("CUSTOM_WORKSPACES_CONTROL_SOCKET", "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	path, err := DefaultSocketPath()
	if err != nil {
		t.Fatalf("DefaultSocketPath: %v", err)
	}
	if path != "/run/user/1000/custom-workspaces/control.sock" {
		t.Fatalf("unexpected path %q", path)
	}
	t.Setenv("CUSTOM_WORKSPACES_CONTROL_SOCKET", "/tmp/cws.sock")
	if path, _ := DefaultSocketPath(); path != "/tmp/cws.sock" {
		t.Fatalf("expected env override, got %q", path)
	}
}
