// Package controller drives the read → convert → produce loop.
package controller

import (
	"context"
	"errors"
	"fmt"

	"firestige.xyz/ferry/internal/config"
	"firestige.xyz/ferry/internal/converter"
	"firestige.xyz/ferry/internal/core"
	"firestige.xyz/ferry/internal/log"
	"firestige.xyz/ferry/internal/message"
	"firestige.xyz/ferry/internal/metrics"
	"firestige.xyz/ferry/internal/source"
)

// Producer accepts packed batches. *sink.Producer satisfies it.
type Producer interface {
	Produce(ctx context.Context, data []byte, flush bool) error
}

// Config wires the loop's collaborators.
type Config struct {
	Source    source.Source
	Converter converter.Converter
	Producer  Producer
	Batch     config.BatchConfig
	Skip      int // records discarded before processing
	Count     int // stop after this many successful records; 0 means no limit
	Logger    log.Logger
}

// Controller owns one batch and runs the ingest loop on the calling
// goroutine.
type Controller struct {
	cfg    Config
	batch  *message.MessageBatch
	logger log.Logger
	stats  counters
}

func New(cfg Config) (*Controller, error) {
	if cfg.Source == nil || cfg.Converter == nil || cfg.Producer == nil {
		return nil, errors.New("controller requires source, converter and producer")
	}
	if cfg.Skip < 0 || cfg.Count < 0 {
		return nil, fmt.Errorf("%w: skip and count must not be negative", core.ErrConfigInvalid)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger()
	}
	c := &Controller{
		cfg:    cfg,
		batch:  message.New(),
		logger: cfg.Logger.WithField("converter", cfg.Converter.Name()),
	}
	c.resetBatch()
	return c, nil
}

// Stats returns the current counters. Safe to call while Run is active.
func (c *Controller) Stats() Stats {
	return c.stats.snapshot()
}

// Run processes records until end of input, the count limit or ctx
// cancellation. Only source I/O errors are returned; sink errors are logged
// and counted. Whatever is batched is flushed before Run returns.
func (c *Controller) Run(ctx context.Context) (Stats, error) {
	src := c.cfg.Source
	c.logger.WithFields(map[string]interface{}{
		"kind":  src.Kind().String(),
		"skip":  c.cfg.Skip,
		"count": c.cfg.Count,
	}).Info("controller starting")

	runErr := c.loop(ctx)

	// the final flush must go out even when ctx was cancelled
	c.produce(context.WithoutCancel(ctx), true)

	stats := c.stats.snapshot()
	c.logger.WithField("stats", stats.String()).Info("controller stopped")
	return stats, runErr
}

func (c *Controller) loop(ctx context.Context) error {
	src := c.cfg.Source
	if c.cfg.Skip > 0 {
		if err := src.Skip(ctx, c.cfg.Skip); err != nil {
			return c.sourceError(ctx, err)
		}
	}

	name := c.cfg.Converter.Name()
	for {
		if c.cfg.Count > 0 && c.stats.success.Load() >= uint64(c.cfg.Count) {
			c.logger.Debug("count limit reached")
			return nil
		}

		frame, err := src.Next(ctx)
		if err != nil {
			return c.sourceError(ctx, err)
		}
		c.stats.read.Add(1)

		status := c.cfg.Converter.Convert(frame, c.batch)
		metrics.FramesTotal.WithLabelValues(name, status.String()).Inc()
		switch status {
		case core.StatusSuccess:
			c.stats.success.Add(1)
		case core.StatusPass:
			c.stats.pass.Add(1)
		case core.StatusFail:
			c.stats.fail.Add(1)
		}

		if c.full() {
			c.produce(ctx, false)
		}
	}
}

// sourceError maps a Next/Skip error to the loop result: end of input and
// cancellation stop cleanly, everything else is fatal.
func (c *Controller) sourceError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, core.ErrEndOfInput):
		c.logger.Debug("end of input")
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		c.logger.Debug("context cancelled")
		return nil
	default:
		return err
	}
}

func (c *Controller) full() bool {
	b := c.cfg.Batch
	return (b.MaxBytes > 0 && c.batch.ByteEstimate() >= b.MaxBytes) ||
		(b.MaxEntries > 0 && c.batch.EntryCount() >= b.MaxEntries)
}

// produce packs the batch (if it has entries) and hands it to the
// producer. flush forces the producer to write its queue.
func (c *Controller) produce(ctx context.Context, flush bool) {
	var data []byte
	if c.batch.EntryCount() > 0 {
		packed, err := c.batch.Pack()
		if err != nil {
			// dropping the batch is the only way forward
			c.stats.produceErrors.Add(1)
			c.logger.WithError(err).Error("pack batch failed")
			c.resetBatch()
			return
		}
		data = packed
		c.stats.batches.Add(1)
		metrics.BatchesTotal.Inc()
		c.resetBatch()
	}
	if data == nil && !flush {
		return
	}
	if err := c.cfg.Producer.Produce(ctx, data, flush); err != nil {
		c.stats.produceErrors.Add(1)
		c.logger.WithError(err).Warn("produce failed, batch dropped")
	}
}

func (c *Controller) resetBatch() {
	c.batch.Clear()
	c.batch.SetTag(c.cfg.Batch.Tag)
	for k, v := range c.cfg.Batch.Options {
		c.batch.SetOption(k, v)
	}
}
