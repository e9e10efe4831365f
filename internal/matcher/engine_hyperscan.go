//go:build hyperscan

package matcher

import (
	"errors"
	"fmt"
	"sync"

	"github.com/flier/gohs/hyperscan"
)

// hyperscanEngine scans with a block-mode database. Scratch space is not
// shareable between goroutines, so clones are kept on a free list.
type hyperscanEngine struct {
	mu      sync.RWMutex
	closed  bool
	db      hyperscan.BlockDatabase
	base    *hyperscan.Scratch
	freeMu  sync.Mutex
	scratch []*hyperscan.Scratch
}

func newHyperscanEngine(patterns []string) (engine, error) {
	compiled := make([]*hyperscan.Pattern, len(patterns))
	for i, p := range patterns {
		hp := hyperscan.NewPattern(p, hyperscan.SingleMatch|hyperscan.DotAll)
		hp.Id = i
		compiled[i] = hp
	}

	db, err := hyperscan.NewBlockDatabase(compiled...)
	if err != nil {
		return nil, fmt.Errorf("hyperscan compile: %w", err)
	}
	base, err := hyperscan.NewScratch(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("hyperscan scratch: %w", err)
	}
	return &hyperscanEngine{db: db, base: base}, nil
}

func (e *hyperscanEngine) getScratch() (*hyperscan.Scratch, error) {
	e.freeMu.Lock()
	if n := len(e.scratch); n > 0 {
		s := e.scratch[n-1]
		e.scratch = e.scratch[:n-1]
		e.freeMu.Unlock()
		return s, nil
	}
	e.freeMu.Unlock()
	return e.base.Clone()
}

func (e *hyperscanEngine) putScratch(s *hyperscan.Scratch) {
	e.freeMu.Lock()
	e.scratch = append(e.scratch, s)
	e.freeMu.Unlock()
}

func (e *hyperscanEngine) Match(data []byte) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false, errEngineClosed
	}

	s, err := e.getScratch()
	if err != nil {
		return false, fmt.Errorf("hyperscan scratch: %w", err)
	}
	defer e.putScratch(s)

	matched := false
	onMatch := func(id uint, from, to uint64, flags uint, ctx interface{}) error {
		matched = true
		return hyperscan.ErrScanTerminated
	}
	err = e.db.Scan(data, s, onMatch, nil)
	if err != nil && !errors.Is(err, hyperscan.ErrScanTerminated) {
		return false, err
	}
	return matched, nil
}

// Close waits for in-flight scans, then frees scratch space and the database.
func (e *hyperscanEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	for _, s := range e.scratch {
		s.Free()
	}
	e.scratch = nil
	e.base.Free()
	return e.db.Close()
}
