package message

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ferry/internal/core"
)

func TestPackRoundTrip(t *testing.T) {
	b := New()
	b.SetTag("Test")
	b.SetOption("key", "value")
	b.AddEntry(1, core.FieldMessage, []byte("my very first message"))
	b.AddEntry(2, core.FieldMessage, []byte("my second very message"))

	packed, err := b.Pack()
	require.NoError(t, err)

	d, err := Unpack(packed)
	require.NoError(t, err)

	assert.Equal(t, "Test", d.Tag)
	assert.Equal(t, map[string]string{"key": "value"}, d.Options)
	require.Len(t, d.Entries, 2)
	assert.Equal(t, uint64(1), d.Entries[0].ID)
	assert.Equal(t, []byte("my very first message"), d.Entries[0].Fields[core.FieldMessage])
	assert.Equal(t, uint64(2), d.Entries[1].ID)
	assert.Equal(t, []byte("my second very message"), d.Entries[1].Fields[core.FieldMessage])
}

func TestPackWireLayout(t *testing.T) {
	b := New()
	b.SetTag("t")
	b.AddEntry(7, "m", []byte{0xAB})

	packed, err := b.Pack()
	require.NoError(t, err)

	want := []byte{
		0x93,      // fixarray(3)
		0xa1, 't', // fixstr tag
		0x91,       // fixarray(1) entries
		0x92,       // fixarray(2) entry
		0x07,       // id
		0x81,       // fixmap(1)
		0xa1, 'm', // field name
		0xc4, 0x01, 0xAB, // bin8 payload
		0x80, // empty options map
	}
	assert.Equal(t, want, packed)
}

func TestPackEmptyBatch(t *testing.T) {
	packed, err := New().Pack()
	require.NoError(t, err)

	d, err := Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, "", d.Tag)
	assert.Empty(t, d.Entries)
	assert.Empty(t, d.Options)
	assert.LessOrEqual(t, len(packed), New().ByteEstimate())
}

func TestAddEntryWithFlow(t *testing.T) {
	b := New()
	b.AddEntryWithFlow(9, core.FieldMessage, []byte("payload"), 0x0A000001, 0xC0A80102, 1234, 80, core.ProtoTCP)

	packed, err := b.Pack()
	require.NoError(t, err)
	d, err := Unpack(packed)
	require.NoError(t, err)

	f := d.Entries[0].Fields
	assert.Equal(t, []byte("payload"), f[core.FieldMessage])
	assert.Equal(t, []byte{0x0A, 0x00, 0x00, 0x01}, f[core.FieldSrc])
	assert.Equal(t, []byte{0xC0, 0xA8, 0x01, 0x02}, f[core.FieldDst])
	assert.Equal(t, []byte{0x04, 0xD2}, f[core.FieldSport])
	assert.Equal(t, []byte{0x00, 0x50}, f[core.FieldDport])
	assert.Equal(t, []byte{6}, f[core.FieldProto])
}

func TestTupleFieldsMatchesFlowFields(t *testing.T) {
	tuple := core.FiveTuple{SrcIP: 1, DstIP: 2, Proto: 17, SrcPort: 3, DstPort: 4}
	assert.Equal(t, FlowFields(1, 2, 3, 4, 17), TupleFields(tuple))
}

func TestAddEntryCopiesPayload(t *testing.T) {
	buf := []byte("original")
	b := New()
	b.AddEntry(1, core.FieldMessage, buf)
	copy(buf, "mutated!")

	assert.Equal(t, []byte("original"), b.Entries()[0].Fields[core.FieldMessage])
}

func TestByteEstimateNeverUnderCounts(t *testing.T) {
	cases := []struct {
		name  string
		build func(b *MessageBatch)
	}{
		{"empty", func(b *MessageBatch) {}},
		{"tag only", func(b *MessageBatch) { b.SetTag(strings.Repeat("x", 300)) }},
		{"small entries", func(b *MessageBatch) {
			for i := 0; i < 100; i++ {
				b.AddEntry(uint64(i), "message", []byte("x"))
			}
		}},
		{"large ids", func(b *MessageBatch) {
			b.AddEntry(^uint64(0), "message", bytes.Repeat([]byte{1}, 70000))
		}},
		{"empty payload", func(b *MessageBatch) { b.AddEntry(1, "message", nil) }},
		{"many fields", func(b *MessageBatch) {
			fields := make([]Field, 20)
			for i := range fields {
				fields[i] = Field{Name: strings.Repeat("f", i+1), Value: bytes.Repeat([]byte{byte(i)}, 40*i)}
			}
			b.AddEntryFields(1, fields...)
		}},
		{"option overwrite", func(b *MessageBatch) {
			b.SetOption("k", strings.Repeat("v", 100))
			b.SetOption("k", "short")
			b.SetOption("other", strings.Repeat("w", 70000))
		}},
		{"tag shrink", func(b *MessageBatch) {
			b.SetTag(strings.Repeat("long", 50))
			b.SetTag("s")
			b.AddEntryWithFlow(5, "message", []byte("p"), 1, 2, 3, 4, 6)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New()
			tc.build(b)
			packed, err := b.Pack()
			require.NoError(t, err)
			assert.GreaterOrEqual(t, b.ByteEstimate(), len(packed))
		})
	}
}

func TestOptionOverwriteAdjustsEstimate(t *testing.T) {
	b := New()
	b.SetOption("k", strings.Repeat("v", 100))
	big := b.ByteEstimate()
	b.SetOption("k", "v")
	assert.Equal(t, big-99, b.ByteEstimate())
}

func TestClear(t *testing.T) {
	b := New()
	empty := b.ByteEstimate()

	b.SetTag("tag")
	b.SetOption("a", "b")
	b.AddEntry(1, "message", []byte("data"))
	require.Equal(t, 1, b.EntryCount())

	b.Clear()
	assert.Equal(t, 0, b.EntryCount())
	assert.Equal(t, empty, b.ByteEstimate())
	assert.Equal(t, "", b.Tag())

	packed, err := b.Pack()
	require.NoError(t, err)
	d, err := Unpack(packed)
	require.NoError(t, err)
	assert.Empty(t, d.Options)
}

func TestPackDoesNotClear(t *testing.T) {
	b := New()
	b.AddEntry(1, "message", []byte("data"))
	first, err := b.Pack()
	require.NoError(t, err)
	second, err := b.Pack()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, b.EntryCount())
}

func TestUnpackGarbage(t *testing.T) {
	_, err := Unpack([]byte{0xc1, 0x00})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMalformedInput))
}

func TestSequence(t *testing.T) {
	var s Sequence
	assert.Equal(t, uint64(0), s.Last())
	assert.Equal(t, uint64(1), s.Next())
	assert.Equal(t, uint64(2), s.Next())
	assert.Equal(t, uint64(2), s.Last())
}

func TestSequenceConcurrent(t *testing.T) {
	var s Sequence
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s.Next()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(8000), s.Last())
}

func BenchmarkPack(b *testing.B) {
	payload := bytes.Repeat([]byte("x"), 512)
	batch := New()
	batch.SetTag("bench")
	for i := 0; i < 100; i++ {
		batch.AddEntryWithFlow(uint64(i), "message", payload, 1, 2, 3, 4, 6)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := batch.Pack(); err != nil {
			b.Fatal(err)
		}
	}
}
