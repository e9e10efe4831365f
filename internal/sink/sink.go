// Package sink delivers packed batches to their destination. A Writer
// performs the actual I/O; the Producer in front of it batches, flushes on
// size or time and retries failed writes.
package sink

import (
	"context"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/ferry/internal/config"
	"firestige.xyz/ferry/internal/core"
)

// Writer sends a group of messages in one operation. When only part of the
// group was delivered, Write returns a *PartialWriteError listing the
// messages still to send.
type Writer interface {
	Name() string
	Write(ctx context.Context, msgs [][]byte) error
	Close() error
}

// PartialWriteError reports a write that delivered some messages before
// failing. Remaining holds the undelivered messages in their original order.
type PartialWriteError struct {
	Remaining [][]byte
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%d messages not written: %v", len(e.Remaining), e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// partial wraps err for a failure at msgs[i].
func partial(msgs [][]byte, i int, err error) error {
	if i == 0 {
		return err
	}
	return &PartialWriteError{Remaining: msgs[i:], Err: err}
}

type writerFactory func(options map[string]any) (Writer, error)

var writers = map[string]writerFactory{
	"kafka": newKafkaWriter,
	"nats":  newNATSWriter,
	"file":  newFileWriter,
	"null":  newNullWriter,
}

// Types lists the registered writer types.
func Types() []string {
	names := make([]string, 0, len(writers))
	for n := range writers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewWriter builds the writer named by cfg.Type from cfg.Options.
func NewWriter(cfg config.SinkConfig) (Writer, error) {
	f, ok := writers[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported sink type %q", core.ErrConfigInvalid, cfg.Type)
	}
	return f(cfg.Options)
}

// New builds the configured writer wrapped in a Producer.
func New(cfg config.SinkConfig) (*Producer, error) {
	w, err := NewWriter(cfg)
	if err != nil {
		return nil, err
	}
	return NewProducer(w, ProducerConfig{
		FlushBytes:    cfg.FlushBytes,
		FlushInterval: cfg.FlushInterval,
		Retry:         cfg.Retry,
	}), nil
}

// decodeOptions decodes writer options into out. Unknown keys are rejected
// so that typos surface at startup.
func decodeOptions(name string, options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("%w: %s sink options: %v", core.ErrConfigInvalid, name, err)
	}
	return nil
}
