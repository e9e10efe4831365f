// Package matcher implements the deny-list pattern filter. A frame whose
// content matches any loaded pattern is suppressed.
package matcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"firestige.xyz/ferry/internal/core"
	"firestige.xyz/ferry/internal/log"
	"firestige.xyz/ferry/internal/metrics"
)

const (
	EngineRegexp    = "regexp"
	EngineHyperscan = "hyperscan"
)

// engine is a compiled multi-pattern automaton.
type engine interface {
	// Match reports whether any pattern occurs in data. It returns
	// errEngineClosed if Close has already run.
	Match(data []byte) (bool, error)
	Close() error
}

var errEngineClosed = errors.New("matcher: engine closed")

type engineFactory func(patterns []string) (engine, error)

var engines = map[string]engineFactory{
	EngineRegexp:    newRegexpEngine,
	EngineHyperscan: newHyperscanEngine,
}

type ruleSet struct {
	eng      engine
	patterns []string
}

// Matcher holds the active rule set. Matches and Reload are safe to call
// concurrently.
type Matcher struct {
	engine string
	logger log.Logger
	active atomic.Pointer[ruleSet]
}

type Option func(*Matcher)

// WithEngine selects the matching engine by name.
func WithEngine(name string) Option {
	return func(m *Matcher) {
		if name != "" {
			m.engine = name
		}
	}
}

func WithLogger(l log.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// Compile builds a matcher from rule lines.
func Compile(lines []string, opts ...Option) (*Matcher, error) {
	m := &Matcher{engine: EngineRegexp, logger: log.GetLogger()}
	for _, opt := range opts {
		opt(m)
	}
	if _, ok := engines[m.engine]; !ok {
		return nil, fmt.Errorf("%w: unknown engine %q", core.ErrPatternCompile, m.engine)
	}

	rs, err := m.compile(lines)
	if err != nil {
		return nil, err
	}
	m.active.Store(rs)
	metrics.MatcherPatterns.Set(float64(len(rs.patterns)))
	return m, nil
}

// CompileReader reads rule lines from r.
func CompileReader(r io.Reader, opts ...Option) (*Matcher, error) {
	lines, err := ParsePatterns(r)
	if err != nil {
		return nil, err
	}
	return Compile(lines, opts...)
}

// CompileFile reads rule lines from the file at path.
func CompileFile(path string, opts ...Option) (*Matcher, error) {
	lines, err := readPatternFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(lines, opts...)
}

// ParsePatterns returns the patterns in r: every line with surrounding
// whitespace trimmed, skipping blank lines and lines starting with '#'.
func ParsePatterns(r io.Reader) ([]string, error) {
	var patterns []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read rules: %v", core.ErrPatternCompile, err)
	}
	return patterns, nil
}

func readPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open rules: %v", core.ErrPatternCompile, err)
	}
	defer f.Close()
	return ParsePatterns(f)
}

func (m *Matcher) compile(lines []string) (*ruleSet, error) {
	patterns := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		patterns = append(patterns, l)
	}
	if len(patterns) == 0 {
		return &ruleSet{eng: emptyEngine{}}, nil
	}

	eng, err := engines[m.engine](patterns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPatternCompile, err)
	}
	return &ruleSet{eng: eng, patterns: patterns}, nil
}

// Matches reports whether data contains a match for any pattern. Empty
// input never matches.
func (m *Matcher) Matches(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for {
		rs := m.active.Load()
		matched, err := rs.eng.Match(data)
		if errors.Is(err, errEngineClosed) {
			// Swapped out under us; retry on the new rule set.
			continue
		}
		if err != nil {
			m.logger.WithError(err).Warn("pattern scan failed")
			return false
		}
		return matched
	}
}

// Len returns the number of active patterns.
func (m *Matcher) Len() int {
	return len(m.active.Load().patterns)
}

// Patterns returns a copy of the active patterns.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.active.Load().patterns...)
}

// Reload compiles lines into a new rule set and swaps it in. On failure
// the previous rules stay active and the error wraps core.ErrPatternCompile.
func (m *Matcher) Reload(lines []string) error {
	rs, err := m.compile(lines)
	if err != nil {
		metrics.MatcherReloadsTotal.WithLabelValues("failure").Inc()
		m.logger.WithError(err).Warn("pattern reload failed, keeping previous rules")
		return err
	}

	old := m.active.Swap(rs)
	if old != nil {
		if err := old.eng.Close(); err != nil {
			m.logger.WithError(err).Warn("failed to release previous pattern engine")
		}
	}
	metrics.MatcherReloadsTotal.WithLabelValues("success").Inc()
	metrics.MatcherPatterns.Set(float64(len(rs.patterns)))
	m.logger.WithField("patterns", len(rs.patterns)).Info("pattern rules reloaded")
	return nil
}

// ReloadFile reloads the rules from path with the same guarantees as Reload.
func (m *Matcher) ReloadFile(path string) error {
	lines, err := readPatternFile(path)
	if err != nil {
		metrics.MatcherReloadsTotal.WithLabelValues("failure").Inc()
		m.logger.WithError(err).WithField("path", path).Warn("pattern reload failed, keeping previous rules")
		return err
	}
	return m.Reload(lines)
}

// Close releases the active engine.
func (m *Matcher) Close() error {
	rs := m.active.Swap(&ruleSet{eng: emptyEngine{}})
	if rs == nil {
		return nil
	}
	return rs.eng.Close()
}

type emptyEngine struct{}

func (emptyEngine) Match([]byte) (bool, error) { return false, nil }
func (emptyEngine) Close() error               { return nil }
