package rules

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/Maximelego/custom-workspaces/internal/util"
)

// ErrRuleCompile marks a title pattern that failed to compile.
var ErrRuleCompile = errors.New("invalid title pattern")

// CompileError reports the offending pattern.
type CompileError struct {
	Pattern string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrRuleCompile, e.Pattern, e.Err)
}

func (e *CompileError) Unwrap() []error {
	return []error{ErrRuleCompile, e.Err}
}

// Match reports whether w satisfies every constraint set on r. The title
// pattern is compiled on each call, case-insensitively, and matched
// anywhere in the title. A pattern that does not compile never matches.
func Match(w Window, r Rule) (bool, error) {
	if r.AppID != "" {
		if w.AppID == "" || w.AppID != r.AppID {
			return false, nil
		}
	}
	if r.TitleRegex != "" {
		re, err := regexp.Compile("(?i)" + r.TitleRegex)
		if err != nil {
			return false, &CompileError{Pattern: r.TitleRegex, Err: err}
		}
		if !re.MatchString(w.Title) {
			return false, nil
		}
	}
	return true, nil
}

// Matcher evaluates rules and reports bad patterns to the log, once per
// pattern.
type Matcher struct {
	logger *util.Logger

	mu       sync.Mutex
	reported map[string]struct{}
}

// NewMatcher returns a Matcher logging to logger.
func NewMatcher(logger *util.Logger) *Matcher {
	return &Matcher{logger: logger, reported: make(map[string]struct{})}
}

// Matches is Match with compile errors logged and treated as no match.
func (m *Matcher) Matches(w Window, r Rule) bool {
	ok, err := Match(w, r)
	if err != nil {
		m.report(r.TitleRegex, err)
		return false
	}
	return ok
}

// FirstMatch returns the first rule in declared order that matches w.
func (m *Matcher) FirstMatch(w Window, rules []Rule) (Rule, int, bool) {
	for i, r := range rules {
		if m.Matches(w, r) {
			return r, i, true
		}
	}
	return Rule{}, -1, false
}

func (m *Matcher) report(pattern string, err error) {
	m.mu.Lock()
	_, seen := m.reported[pattern]
	if !seen {
		m.reported[pattern] = struct{}{}
	}
	m.mu.Unlock()
	if seen || m.logger == nil {
		return
	}
	m.logger.Warnf("rule ignored: %v", err)
}
