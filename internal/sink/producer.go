package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"

	"firestige.xyz/ferry/internal/config"
	"firestige.xyz/ferry/internal/core"
	"firestige.xyz/ferry/internal/log"
	"firestige.xyz/ferry/internal/metrics"
)

const (
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// ProducerConfig controls when buffered messages are written.
type ProducerConfig struct {
	FlushBytes    int           // 0 writes every message immediately
	FlushInterval time.Duration // 0 disables time-based flushing
	Retry         config.RetryConfig
}

// Producer buffers messages for a Writer:
//
//	Produce → pending → (flush_bytes | flush_interval tick | flush=true) → Writer.Write
//
// Writes run under the producer lock, so a slow sink blocks Produce.
type Producer struct {
	w      Writer
	cfg    ProducerConfig
	logger log.Logger

	mu           sync.Mutex
	pending      [][]byte
	pendingBytes int
	closed       bool

	done chan struct{}
	wg   sync.WaitGroup
}

func NewProducer(w Writer, cfg ProducerConfig) *Producer {
	if cfg.Retry.InitialInterval <= 0 {
		cfg.Retry.InitialInterval = defaultInitialInterval
	}
	if cfg.Retry.MaxInterval <= 0 {
		cfg.Retry.MaxInterval = defaultMaxInterval
	}
	p := &Producer{
		w:      w,
		cfg:    cfg,
		logger: log.GetLogger().WithField("sink", w.Name()),
		done:   make(chan struct{}),
	}
	if cfg.FlushInterval > 0 {
		p.wg.Add(1)
		go p.flushLoop()
	}
	return p
}

// Name returns the underlying writer's name.
func (p *Producer) Name() string { return p.w.Name() }

// Produce queues data and writes the queue when flush is set or the byte
// threshold is reached. The data is copied. A write that still fails after
// the retry policy returns an error wrapping core.ErrSinkWrite; the failed
// messages are dropped. Retries resend only what the writer reports as
// undelivered.
func (p *Producer) Produce(ctx context.Context, data []byte, flush bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return core.ErrSinkClosed
	}
	if len(data) > 0 {
		p.pending = append(p.pending, append([]byte(nil), data...))
		p.pendingBytes += len(data)
	}
	if flush || p.pendingBytes >= p.cfg.FlushBytes {
		return p.flushLocked(ctx)
	}
	return nil
}

// Flush writes everything queued.
func (p *Producer) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

// Pending returns the number of queued messages and their total size.
func (p *Producer) Pending() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending), p.pendingBytes
}

func (p *Producer) flushLocked(ctx context.Context) error {
	if len(p.pending) == 0 {
		return nil
	}
	msgs, size := p.pending, p.pendingBytes
	p.pending, p.pendingBytes = nil, 0

	unsent, err := p.writeWithRetry(ctx, msgs)
	metrics.SinkBytesTotal.WithLabelValues(p.w.Name()).Add(float64(size - byteLen(unsent)))
	if err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(p.w.Name()).Inc()
		return fmt.Errorf("%w: %s: %w", core.ErrSinkWrite, p.w.Name(), err)
	}
	return nil
}

// writeWithRetry returns the messages that were never delivered along with
// the last error.
func (p *Producer) writeWithRetry(ctx context.Context, msgs [][]byte) ([][]byte, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.cfg.Retry.InitialInterval
	eb.MaxInterval = p.cfg.Retry.MaxInterval
	eb.MaxElapsedTime = 0 // bounded by MaxRetries

	remaining := msgs
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.cfg.Retry.MaxRetries)), ctx)
	err := backoff.RetryNotify(func() error {
		err := p.w.Write(ctx, remaining)
		var pe *PartialWriteError
		if errors.As(err, &pe) {
			remaining = pe.Remaining
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		metrics.SinkRetriesTotal.WithLabelValues(p.w.Name()).Inc()
		p.logger.WithError(err).WithFields(map[string]interface{}{
			"wait":    wait,
			"pending": len(remaining),
		}).Warn("sink write failed, retrying")
	})
	if err != nil {
		return remaining, err
	}
	return nil, nil
}

func byteLen(msgs [][]byte) int {
	n := 0
	for _, m := range msgs {
		n += len(m)
	}
	return n
}

func (p *Producer) flushLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if err := p.Flush(context.Background()); err != nil {
				p.logger.WithError(err).Error("periodic flush failed")
			}
		}
	}
}

// Close stops the flush timer, writes what is queued and closes the writer.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()

	p.mu.Lock()
	flushErr := p.flushLocked(ctx)
	p.mu.Unlock()

	return multierr.Combine(flushErr, p.w.Close())
}
