package controller

import (
	"fmt"
	"sync/atomic"
)

// Stats is a snapshot of the loop counters.
type Stats struct {
	Read          uint64
	Success       uint64
	Pass          uint64
	Fail          uint64
	Batches       uint64
	ProduceErrors uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("read=%d success=%d pass=%d fail=%d batches=%d produce_errors=%d",
		s.Read, s.Success, s.Pass, s.Fail, s.Batches, s.ProduceErrors)
}

// counters are updated by the ingest goroutine and may be read by others
// while the loop runs.
type counters struct {
	read          atomic.Uint64
	success       atomic.Uint64
	pass          atomic.Uint64
	fail          atomic.Uint64
	batches       atomic.Uint64
	produceErrors atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Read:          c.read.Load(),
		Success:       c.success.Load(),
		Pass:          c.pass.Load(),
		Fail:          c.fail.Load(),
		Batches:       c.batches.Load(),
		ProduceErrors: c.produceErrors.Load(),
	}
}
