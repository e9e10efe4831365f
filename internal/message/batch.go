// Package message implements MessageBatch, the unit handed to a sink, and
// its msgpack wire format:
//
//	[tag, [[id, {field: bytes, ...}], ...], {key: value, ...}]
package message

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/ferry/internal/core"
)

// Upper bounds of msgpack header sizes used by the running estimate.
const (
	arrayHeaderMax = 5 // array32
	mapHeaderMax   = 5 // map32
	strHeaderMax   = 5 // str32
	binHeaderMax   = 5 // bin32
	uintMax        = 9 // uint64

	// outer fixarray(3) + tag header + entries header + options header
	emptyEnvelope = 1 + strHeaderMax + arrayHeaderMax + mapHeaderMax
	// fixarray(2) + id + fields map header
	entryOverhead = 1 + uintMax + mapHeaderMax
)

// Field is one named payload of an entry.
type Field struct {
	Name  string
	Value []byte
}

// Entry is one forwarded record.
type Entry struct {
	ID     uint64
	Fields map[string][]byte
}

// MessageBatch collects entries under a tag and option map. It keeps a
// running upper bound of its packed size so callers can decide when to
// flush without packing. Not safe for concurrent use.
type MessageBatch struct {
	tag         string
	entries     []Entry
	options     map[string]string
	optionSizes map[string]int
	estimate    int
}

func New() *MessageBatch {
	b := &MessageBatch{}
	b.Clear()
	return b
}

// SetTag replaces the batch tag.
func (b *MessageBatch) SetTag(tag string) {
	b.estimate += len(tag) - len(b.tag)
	b.tag = tag
}

func (b *MessageBatch) Tag() string { return b.tag }

// SetOption sets key to value, replacing any previous value.
func (b *MessageBatch) SetOption(key, value string) {
	size := strHeaderMax + len(key) + strHeaderMax + len(value)
	b.estimate += size - b.optionSizes[key]
	b.optionSizes[key] = size
	b.options[key] = value
}

// AddEntry appends an entry holding a single field. The payload is copied.
func (b *MessageBatch) AddEntry(id uint64, field string, payload []byte) {
	b.AddEntryFields(id, Field{Name: field, Value: payload})
}

// AddEntryWithFlow appends an entry holding field plus the flow metadata
// fields, each encoded big-endian at its fixed width.
func (b *MessageBatch) AddEntryWithFlow(id uint64, field string, payload []byte, src, dst uint32, sport, dport uint16, proto uint8) {
	b.AddEntryFields(id, append([]Field{{Name: field, Value: payload}}, FlowFields(src, dst, sport, dport, proto)...)...)
}

// AddEntryFields appends an entry with arbitrary fields. Values are copied;
// a repeated name keeps the last value.
func (b *MessageBatch) AddEntryFields(id uint64, fields ...Field) {
	m := make(map[string][]byte, len(fields))
	size := entryOverhead
	for _, f := range fields {
		v := make([]byte, len(f.Value))
		copy(v, f.Value)
		m[f.Name] = v
		size += strHeaderMax + len(f.Name) + binHeaderMax + len(f.Value)
	}
	b.entries = append(b.entries, Entry{ID: id, Fields: m})
	b.estimate += size
}

// FlowFields returns the reserved metadata fields for a flow.
func FlowFields(src, dst uint32, sport, dport uint16, proto uint8) []Field {
	return []Field{
		{Name: core.FieldSrc, Value: binary.BigEndian.AppendUint32(nil, src)},
		{Name: core.FieldDst, Value: binary.BigEndian.AppendUint32(nil, dst)},
		{Name: core.FieldSport, Value: binary.BigEndian.AppendUint16(nil, sport)},
		{Name: core.FieldDport, Value: binary.BigEndian.AppendUint16(nil, dport)},
		{Name: core.FieldProto, Value: []byte{proto}},
	}
}

// TupleFields is FlowFields for a FiveTuple.
func TupleFields(t core.FiveTuple) []Field {
	return FlowFields(t.SrcIP, t.DstIP, t.SrcPort, t.DstPort, t.Proto)
}

// ByteEstimate returns an upper bound of len(Pack()).
func (b *MessageBatch) ByteEstimate() int { return b.estimate }

func (b *MessageBatch) EntryCount() int { return len(b.entries) }

// Entries returns the entries in insertion order. The slice is owned by
// the batch.
func (b *MessageBatch) Entries() []Entry { return b.entries }

// Clear resets the batch to the empty state, including tag and options.
func (b *MessageBatch) Clear() {
	b.tag = ""
	b.entries = b.entries[:0]
	b.options = make(map[string]string)
	b.optionSizes = make(map[string]int)
	b.estimate = emptyEnvelope
}

// Pack serializes the batch. The batch is left unchanged.
func (b *MessageBatch) Pack() ([]byte, error) {
	out := make([]byte, 0, b.estimate)
	w := wireBatch{
		Tag:     b.tag,
		Entries: make([]wireEntry, len(b.entries)),
		Options: b.options,
	}
	for i, e := range b.entries {
		w.Entries[i] = wireEntry{ID: e.ID, Fields: e.Fields}
	}
	if err := encode(&out, &w); err != nil {
		return nil, fmt.Errorf("pack batch: %w", err)
	}
	return out, nil
}

func (b *MessageBatch) String() string {
	return fmt.Sprintf("MessageBatch{tag=%q entries=%d options=%d estimate=%d}", b.tag, len(b.entries), len(b.options), b.estimate)
}
