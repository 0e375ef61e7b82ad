// Package spawn launches configured command lines as detached processes.
package spawn

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/mattn/go-shellwords"

	"github.com/Maximelego/custom-workspaces/internal/desktop"
	"github.com/Maximelego/custom-workspaces/internal/metrics"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// ErrCommandParse marks a command line that cannot be tokenized.
var ErrCommandParse = errors.New("cannot parse command line")

// ExpandHome replaces a leading "~/" with the home directory.
func ExpandHome(commandLine, home string) string {
	if home == "" || !strings.HasPrefix(commandLine, "~/") {
		return commandLine
	}
	return strings.TrimSuffix(home, "/") + "/" + commandLine[2:]
}

// Parse expands a leading "~/" and splits the command line into argv
// using shell quoting rules. Variables, command substitution, and shell
// operators are not interpreted.
func Parse(commandLine, home string) ([]string, error) {
	expanded := ExpandHome(commandLine, home)
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false
	argv, err := p.Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrCommandParse, commandLine, err)
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("%w %q: shell operators are not supported", ErrCommandParse, commandLine)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w %q: empty command", ErrCommandParse, commandLine)
	}
	return argv, nil
}

// Spawner starts commands in their own session and never waits on them
// beyond reaping.
type Spawner struct {
	logger  *util.Logger
	metrics *metrics.Collector
	home    string
}

// New returns a Spawner expanding "~/" against the user's home directory.
func New(logger *util.Logger, collector *metrics.Collector) *Spawner {
	home, _ := os.UserHomeDir()
	return &Spawner{logger: logger, metrics: collector, home: home}
}

// Spawn parses and launches commandLine, searching PATH for the program.
func (s *Spawner) Spawn(commandLine string) error {
	err := s.spawn(commandLine)
	s.metrics.RecordSpawn(err)
	return err
}

func (s *Spawner) spawn(commandLine string) error {
	argv, err := Parse(commandLine, s.home)
	if err != nil {
		return err
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("%w: spawn %q: %w", desktop.ErrExternalAPI, commandLine, err)
	}
	cmd := exec.Command(path, argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: spawn %q: %w", desktop.ErrExternalAPI, commandLine, err)
	}
	pid := cmd.Process.Pid
	if s.logger != nil {
		s.logger.Infof("spawn: %s (pid %d)", commandLine, pid)
	}
	go func() {
		if err := cmd.Wait(); err != nil && s.logger != nil {
			s.logger.Debugf("process %d (%s) exited: %v", pid, argv[0], err)
		}
	}()
	return nil
}

var _ desktop.Spawner = (*Spawner)(nil)
