package session

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ferry/internal/core"
	"firestige.xyz/ferry/internal/message"
)

var flowA = core.FiveTuple{SrcIP: 0x0A000001, DstIP: 0x0A000002, Proto: core.ProtoTCP, SrcPort: 40000, DstPort: 80}

func TestFlowKeyKnownValues(t *testing.T) {
	assert.Equal(t, uint64(0), FlowKey(0, 0, 0, 0, 0))
	assert.Equal(t, uint64(0xFFFFFFFF01FFFFFE), FlowKey(0xFFFFFFFF, 0xFFFFFFFF, 0xFF, 0xFFFF, 0xFFFF))
	assert.Equal(t, uint64(6442844169), FlowKey(1, 2, 3, 4, 5))
}

func TestFlowKeySymmetric(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		src, dst := r.Uint32(), r.Uint32()
		proto := uint8(r.Intn(256))
		sport, dport := uint16(r.Intn(65536)), uint16(r.Intn(65536))
		require.Equal(t, FlowKey(src, dst, proto, sport, dport), FlowKey(dst, src, proto, dport, sport))
	}
	assert.Equal(t, TupleKey(flowA), TupleKey(flowA.Reverse()))
}

func TestNinePacketsEmitOnce(t *testing.T) {
	s := New(Config{})

	var accumulated []byte
	for i := 1; i <= 9; i++ {
		p := bytes.Repeat([]byte{byte('a' + i)}, 15)
		accumulated = append(accumulated, p...)
		ready := s.Update(flowA, p)
		assert.Equal(t, i == 9, ready, "packet %d", i)
	}

	b := message.New()
	var seq message.Sequence
	require.Equal(t, 1, s.DrainReady(b, &seq))
	require.Equal(t, 1, b.EntryCount())

	e := b.Entries()[0]
	assert.Equal(t, uint64(1), e.ID)
	assert.Equal(t, accumulated, e.Fields[core.FieldMessage])
	assert.Len(t, e.Fields[core.FieldMessage], 135)

	assert.Equal(t, 0, s.DrainReady(b, &seq))
	assert.Equal(t, 1, b.EntryCount())
}

func TestFirstPayloadTruncatedToMax(t *testing.T) {
	s := New(Config{MinSampleSize: 4, MaxSampleSize: 8})
	assert.True(t, s.Update(flowA, []byte("0123456789")))

	status, n, ok := s.Lookup(flowA)
	require.True(t, ok)
	assert.Equal(t, Sampling, status)
	assert.Equal(t, 8, n)
}

func TestAppendCappedAtMax(t *testing.T) {
	s := New(Config{MinSampleSize: 6, MaxSampleSize: 8})
	assert.False(t, s.Update(flowA, []byte("abc")))
	assert.True(t, s.Update(flowA, []byte("defghij")))
	assert.True(t, s.Update(flowA, []byte("klm")))

	b := message.New()
	var seq message.Sequence
	require.Equal(t, 1, s.DrainReady(b, &seq))
	assert.Equal(t, []byte("abcdefgh"), b.Entries()[0].Fields[core.FieldMessage])
}

func TestFlowSampledOnlyOnce(t *testing.T) {
	s := New(Config{MinSampleSize: 4, MaxSampleSize: 16})
	s.Update(flowA, []byte("abcd"))

	b := message.New()
	var seq message.Sequence
	require.Equal(t, 1, s.DrainReady(b, &seq))

	assert.False(t, s.Update(flowA, []byte("efghijkl")))
	status, n, ok := s.Lookup(flowA)
	require.True(t, ok)
	assert.Equal(t, NoSampling, status)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, s.DrainReady(b, &seq))
	assert.Equal(t, 1, s.Len())
}

func TestBothDirectionsShareFlow(t *testing.T) {
	s := New(Config{MinSampleSize: 8, MaxSampleSize: 64})
	s.Update(flowA, []byte("ping"))
	assert.True(t, s.Update(flowA.Reverse(), []byte("pong")))
	assert.Equal(t, 1, s.Len())

	b := message.New()
	var seq message.Sequence
	require.Equal(t, 1, s.DrainReady(b, &seq))

	// Metadata comes from the packet that created the flow.
	f := b.Entries()[0].Fields
	assert.Equal(t, []byte("pingpong"), f[core.FieldMessage])
	assert.Equal(t, []byte{0x0A, 0, 0, 1}, f[core.FieldSrc])
	assert.Equal(t, []byte{0x9C, 0x40}, f[core.FieldSport])
	assert.Equal(t, []byte{core.ProtoTCP}, f[core.FieldProto])
}

func TestDrainOrderAndIDs(t *testing.T) {
	s := New(Config{MinSampleSize: 2, MaxSampleSize: 4})
	flows := []core.FiveTuple{
		{SrcIP: 1, DstIP: 100, Proto: core.ProtoUDP, SrcPort: 1, DstPort: 53},
		{SrcIP: 2, DstIP: 100, Proto: core.ProtoUDP, SrcPort: 1, DstPort: 53},
		{SrcIP: 3, DstIP: 100, Proto: core.ProtoUDP, SrcPort: 1, DstPort: 53},
	}
	for _, f := range flows {
		s.Update(f, []byte("zz"))
	}
	assert.Equal(t, 3, s.Ready())

	b := message.New()
	seq := &message.Sequence{}
	seq.Next()
	require.Equal(t, 3, s.DrainReady(b, seq))
	for i, e := range b.Entries() {
		assert.Equal(t, uint64(i+2), e.ID)
		assert.Equal(t, []byte{0, 0, 0, byte(i + 1)}, e.Fields[core.FieldSrc])
	}
	assert.Equal(t, 0, s.Ready())
}

func TestNotReadyFlowsStay(t *testing.T) {
	s := New(Config{MinSampleSize: 10, MaxSampleSize: 20})
	s.Update(flowA, []byte("short"))

	b := message.New()
	var seq message.Sequence
	assert.Equal(t, 0, s.DrainReady(b, &seq))
	assert.Equal(t, 0, b.EntryCount())

	status, n, _ := s.Lookup(flowA)
	assert.Equal(t, Sampling, status)
	assert.Equal(t, 5, n)
}

func TestEvictsLeastRecentlyUpdated(t *testing.T) {
	s := New(Config{MinSampleSize: 4, MaxSampleSize: 8, MaxFlows: 2})
	f1 := core.FiveTuple{SrcIP: 1, DstIP: 9, Proto: core.ProtoUDP}
	f2 := core.FiveTuple{SrcIP: 2, DstIP: 9, Proto: core.ProtoUDP}
	f3 := core.FiveTuple{SrcIP: 3, DstIP: 9, Proto: core.ProtoUDP}

	s.Update(f1, []byte("aaaa"))
	s.Update(f2, []byte("bb"))
	s.Update(f1, []byte("a")) // f1 is now most recent
	s.Update(f3, []byte("cc"))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, uint64(1), s.Evictions())
	_, _, ok := s.Lookup(f2)
	assert.False(t, ok, "f2 was least recently updated")
	_, _, ok = s.Lookup(f1)
	assert.True(t, ok)
}

func TestEvictionKeepsReadyCount(t *testing.T) {
	s := New(Config{MinSampleSize: 2, MaxSampleSize: 4, MaxFlows: 1})
	f1 := core.FiveTuple{SrcIP: 1, DstIP: 9}
	f2 := core.FiveTuple{SrcIP: 2, DstIP: 9}

	assert.True(t, s.Update(f1, []byte("xx")))
	assert.Equal(t, 1, s.Ready())
	s.Update(f2, []byte("y"))
	assert.Equal(t, 0, s.Ready())

	b := message.New()
	var seq message.Sequence
	assert.Equal(t, 0, s.DrainReady(b, &seq))
}

func TestEvictedFlowCanBeSampledAgain(t *testing.T) {
	s := New(Config{MinSampleSize: 2, MaxSampleSize: 4, MaxFlows: 1})
	f1 := core.FiveTuple{SrcIP: 1, DstIP: 9}
	f2 := core.FiveTuple{SrcIP: 2, DstIP: 9}

	b := message.New()
	var seq message.Sequence
	s.Update(f1, []byte("xx"))
	require.Equal(t, 1, s.DrainReady(b, &seq))

	s.Update(f2, []byte("y")) // evicts f1
	assert.True(t, s.Update(f1, []byte("zz")))
}

func TestConfigDefaults(t *testing.T) {
	cfg := New(Config{}).Config()
	assert.Equal(t, DefaultMinSampleSize, cfg.MinSampleSize)
	assert.Equal(t, DefaultMaxSampleSize, cfg.MaxSampleSize)
	assert.Equal(t, DefaultMaxFlows, cfg.MaxFlows)

	cfg = New(Config{MinSampleSize: 100, MaxSampleSize: 10}).Config()
	assert.Equal(t, 10, cfg.MinSampleSize)
}

func TestConcurrentUpdates(t *testing.T) {
	s := New(Config{MinSampleSize: 64, MaxSampleSize: 128, MaxFlows: 32})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Update(core.FiveTuple{SrcIP: uint32(i % 50), DstIP: uint32(g)}, []byte("payload!"))
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 32)
	b := message.New()
	var seq message.Sequence
	n := s.DrainReady(b, &seq)
	assert.Equal(t, n, b.EntryCount())
	assert.Equal(t, 0, s.Ready())
}

func BenchmarkUpdate(b *testing.B) {
	s := New(Config{})
	payload := bytes.Repeat([]byte{1}, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Update(core.FiveTuple{SrcIP: uint32(i), DstIP: 1, Proto: 6}, payload)
	}
}
