// Package session implements per-flow payload sampling. Payload bytes of a
// bidirectional flow are accumulated until a minimum sample size is
// reached, then emitted as a single entry.
package session

import (
	"container/list"
	"sync"

	"firestige.xyz/ferry/internal/core"
	"firestige.xyz/ferry/internal/message"
	"firestige.xyz/ferry/internal/metrics"
)

const (
	DefaultMinSampleSize = 128
	DefaultMaxSampleSize = 2048
	DefaultMaxFlows      = 65536
)

// Status of a flow. NoSampling orders before Sampling; a flow in
// NoSampling is never accumulated into again.
type Status uint8

const (
	NoSampling Status = iota
	Sampling
)

func (s Status) String() string {
	if s == Sampling {
		return "sampling"
	}
	return "no-sampling"
}

// FlowKey combines a 5-tuple into a direction-independent key. Addition
// commutes, so both directions of a flow share one key. Distinct flows
// may collide.
func FlowKey(src, dst uint32, proto uint8, sport, dport uint16) uint64 {
	return ((uint64(src) + uint64(dst)) << 31) + (uint64(proto) << 17) + (uint64(sport) + uint64(dport))
}

// TupleKey is FlowKey of t.
func TupleKey(t core.FiveTuple) uint64 {
	return FlowKey(t.SrcIP, t.DstIP, t.Proto, t.SrcPort, t.DstPort)
}

type Config struct {
	MinSampleSize int
	MaxSampleSize int
	MaxFlows      int
}

func (c Config) withDefaults() Config {
	if c.MinSampleSize <= 0 {
		c.MinSampleSize = DefaultMinSampleSize
	}
	if c.MaxSampleSize <= 0 {
		c.MaxSampleSize = DefaultMaxSampleSize
	}
	if c.MinSampleSize > c.MaxSampleSize {
		c.MinSampleSize = c.MaxSampleSize
	}
	if c.MaxFlows <= 0 {
		c.MaxFlows = DefaultMaxFlows
	}
	return c
}

type entry struct {
	key    uint64
	tuple  core.FiveTuple // tuple of the packet that created the entry
	status Status
	buf    []byte
	elem   *list.Element
}

// Sampler holds the flow table. The least recently updated flow is evicted
// once MaxFlows is exceeded. Safe for concurrent use.
type Sampler struct {
	mu        sync.Mutex
	cfg       Config
	flows     map[uint64]*entry
	lru       *list.List // front = most recently updated
	ready     int
	evictions uint64
}

func New(cfg Config) *Sampler {
	return &Sampler{
		cfg:   cfg.withDefaults(),
		flows: make(map[uint64]*entry),
		lru:   list.New(),
	}
}

func (s *Sampler) Config() Config { return s.cfg }

// Update feeds one packet payload of flow t. It reports whether the flow
// now holds at least MinSampleSize bytes awaiting DrainReady.
func (s *Sampler) Update(t core.FiveTuple, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := TupleKey(t)
	e, ok := s.flows[key]
	if !ok {
		n := min(len(payload), s.cfg.MaxSampleSize)
		e = &entry{
			key:    key,
			tuple:  t,
			status: Sampling,
			buf:    make([]byte, n, s.cfg.MaxSampleSize),
		}
		copy(e.buf, payload)
		e.elem = s.lru.PushFront(e)
		s.flows[key] = e
		s.evict()
		metrics.SessionFlows.Set(float64(len(s.flows)))
		return s.markReady(e, 0)
	}

	s.lru.MoveToFront(e.elem)
	if e.status < Sampling {
		return false
	}
	before := len(e.buf)
	room := s.cfg.MaxSampleSize - before
	if room <= 0 {
		return before >= s.cfg.MinSampleSize
	}
	e.buf = append(e.buf, payload[:min(len(payload), room)]...)
	return s.markReady(e, before)
}

// markReady keeps the ready counter in step when a flow crosses the minimum.
func (s *Sampler) markReady(e *entry, before int) bool {
	isReady := len(e.buf) >= s.cfg.MinSampleSize
	if isReady && before < s.cfg.MinSampleSize {
		s.ready++
	}
	return isReady
}

func (s *Sampler) evict() {
	for len(s.flows) > s.cfg.MaxFlows {
		back := s.lru.Back()
		if back == nil {
			return
		}
		old := s.lru.Remove(back).(*entry)
		if old.status == Sampling && len(old.buf) >= s.cfg.MinSampleSize {
			s.ready--
		}
		delete(s.flows, old.key)
		s.evictions++
		metrics.SessionEvictionsTotal.Inc()
	}
}

// DrainReady emits one entry for every flow holding at least
// MinSampleSize bytes, in least-recently-updated order. Each emitted
// entry carries field "message" plus the flow metadata. The flow's buffer
// is released and its status set to NoSampling. Returns the number of
// entries added.
func (s *Sampler) DrainReady(b *message.MessageBatch, seq *message.Sequence) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready == 0 {
		return 0
	}

	emitted := 0
	for el := s.lru.Back(); el != nil && s.ready > 0; el = el.Prev() {
		e := el.Value.(*entry)
		if e.status != Sampling || len(e.buf) < s.cfg.MinSampleSize {
			continue
		}
		fields := append([]message.Field{{Name: core.FieldMessage, Value: e.buf}}, message.TupleFields(e.tuple)...)
		b.AddEntryFields(seq.Next(), fields...)
		e.buf = nil
		e.status = NoSampling
		s.ready--
		emitted++
	}
	return emitted
}

// Len returns the number of tracked flows.
func (s *Sampler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

// Ready returns the number of flows awaiting DrainReady.
func (s *Sampler) Ready() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Evictions returns how many flows the capacity bound has evicted.
func (s *Sampler) Evictions() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}

// Lookup returns the status and buffered byte count of the flow t belongs to.
func (s *Sampler) Lookup(t core.FiveTuple) (Status, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.flows[TupleKey(t)]
	if !ok {
		return NoSampling, 0, false
	}
	return e.status, len(e.buf), true
}
