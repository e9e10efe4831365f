package message

import "sync/atomic"

// Sequence hands out monotonically increasing entry ids starting at 1.
// The zero value is ready to use.
type Sequence struct {
	last atomic.Uint64
}

func (s *Sequence) Next() uint64 { return s.last.Add(1) }

// Last returns the most recently issued id, 0 if none.
func (s *Sequence) Last() uint64 { return s.last.Load() }
