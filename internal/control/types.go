package control

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/Maximelego/custom-workspaces/internal/sequence"
	"github.com/Maximelego/custom-workspaces/internal/session"
)

const (
	// SocketFileName is the filename of the control socket within the runtime dir.
	SocketFileName = "control.sock"

	// Action names supported by the control protocol.
	ActionStatus  = "status"
	ActionPlan    = "plan"
	ActionReload  = "reload"
	ActionEnable  = "enable"
	ActionDisable = "disable"

	// Response statuses.
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents a control API request.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Response represents a control API response.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// SessionStatus is the payload of the status action.
type SessionStatus = session.Status

// PlanStep is one startup action as reported over the socket.
type PlanStep struct {
	Kind      string `json:"kind"`
	OffsetMs  int64  `json:"offsetMs"`
	Workspace int    `json:"workspace"`
	Command   string `json:"command,omitempty"`
}

// PlanResult captures the startup playlist returned by the daemon.
type PlanResult struct {
	Steps []PlanStep `json:"steps"`
}

// NewPlanResult converts a startup plan into its wire form.
func NewPlanResult(steps []sequence.Step) PlanResult {
	result := PlanResult{Steps: make([]PlanStep, 0, len(steps))}
	for _, st := range steps {
		result.Steps = append(result.Steps, PlanStep{
			Kind:      string(st.Kind),
			OffsetMs:  st.Offset.Milliseconds(),
			Workspace: st.Workspace,
			Command:   st.Command,
		})
	}
	return result
}

// DefaultSocketPath returns the expected location of the control socket.
func DefaultSocketPath() (string, error) {
	if env := os.Getenv("CUSTOM_WORKSPACES_CONTROL_SOCKET"); env != "" {
		return env, nil
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	base := runtimeDir
	if base == "" {
		base = os.TempDir()
		if base == "" {
			return "", errors.New("no runtime directory available")
		}
	}
	return filepath.Join(base, "custom-workspaces", SocketFileName), nil
}
