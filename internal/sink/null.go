package sink

import (
	"context"
	"sync/atomic"
)

// nullWriter discards everything. Used for dry runs and benchmarks.
type nullWriter struct {
	messages atomic.Uint64
	bytes    atomic.Uint64
}

func newNullWriter(options map[string]any) (Writer, error) {
	if err := decodeOptions("null", options, &struct{}{}); err != nil {
		return nil, err
	}
	return &nullWriter{}, nil
}

func (n *nullWriter) Name() string { return "null" }

func (n *nullWriter) Write(_ context.Context, msgs [][]byte) error {
	for _, m := range msgs {
		n.messages.Add(1)
		n.bytes.Add(uint64(len(m)))
	}
	return nil
}

func (n *nullWriter) Close() error { return nil }
