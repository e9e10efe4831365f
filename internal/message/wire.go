package message

import (
	"fmt"

	"github.com/ugorji/go/codec"

	"firestige.xyz/ferry/internal/core"
)

// wireBatch and wireEntry encode as msgpack arrays, not maps.
type wireBatch struct {
	_struct struct{}          `codec:",toarray"`
	Tag     string            `codec:"tag"`
	Entries []wireEntry       `codec:"entries"`
	Options map[string]string `codec:"options"`
}

type wireEntry struct {
	_struct struct{}          `codec:",toarray"`
	ID      uint64            `codec:"id"`
	Fields  map[string][]byte `codec:"fields"`
}

var handle = newHandle()

func newHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	// New msgpack spec: str8 and bin types, so []byte travels as bin.
	h.WriteExt = true
	// Sorted map keys give a stable encoding.
	h.Canonical = true
	return h
}

func encode(out *[]byte, v interface{}) error {
	return codec.NewEncoderBytes(out, handle).Encode(v)
}

// Decoded is an unpacked batch.
type Decoded struct {
	Tag     string
	Entries []Entry
	Options map[string]string
}

// Unpack parses bytes produced by Pack.
func Unpack(data []byte) (*Decoded, error) {
	var w wireBatch
	if err := codec.NewDecoderBytes(data, handle).Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: unpack batch: %v", core.ErrMalformedInput, err)
	}
	d := &Decoded{
		Tag:     w.Tag,
		Entries: make([]Entry, len(w.Entries)),
		Options: w.Options,
	}
	if d.Options == nil {
		d.Options = map[string]string{}
	}
	for i, e := range w.Entries {
		d.Entries[i] = Entry{ID: e.ID, Fields: e.Fields}
	}
	return d, nil
}
