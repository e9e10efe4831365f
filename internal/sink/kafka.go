package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/ferry/internal/core"
)

const (
	defaultKafkaBatchSize    = 100
	defaultKafkaBatchTimeout = 10 * time.Millisecond
	defaultKafkaCompression  = "snappy"
	defaultKafkaMaxAttempts  = 3
)

// KafkaOptions configures the kafka writer.
type KafkaOptions struct {
	Brokers      []string      `mapstructure:"brokers"` // required
	Topic        string        `mapstructure:"topic"`   // required
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none|gzip|snappy|lz4|zstd
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RequiredAcks int           `mapstructure:"required_acks"` // -1 all, 0 none, 1 leader
}

type kafkaWriter struct {
	w    *kafka.Writer
	opts KafkaOptions
}

func newKafkaWriter(options map[string]any) (Writer, error) {
	opts := KafkaOptions{
		BatchSize:    defaultKafkaBatchSize,
		BatchTimeout: defaultKafkaBatchTimeout,
		Compression:  defaultKafkaCompression,
		MaxAttempts:  defaultKafkaMaxAttempts,
		RequiredAcks: 1,
	}
	if err := decodeOptions("kafka", options, &opts); err != nil {
		return nil, err
	}
	wc, err := kafkaWriterConfig(opts)
	if err != nil {
		return nil, err
	}
	return &kafkaWriter{w: kafka.NewWriter(wc), opts: opts}, nil
}

func kafkaWriterConfig(opts KafkaOptions) (kafka.WriterConfig, error) {
	if len(opts.Brokers) == 0 {
		return kafka.WriterConfig{}, fmt.Errorf("%w: kafka sink requires brokers", core.ErrConfigInvalid)
	}
	if opts.Topic == "" {
		return kafka.WriterConfig{}, fmt.Errorf("%w: kafka sink requires topic", core.ErrConfigInvalid)
	}

	wc := kafka.WriterConfig{
		Brokers:      opts.Brokers,
		Topic:        opts.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    opts.BatchSize,
		BatchTimeout: opts.BatchTimeout,
		MaxAttempts:  opts.MaxAttempts,
		RequiredAcks: opts.RequiredAcks,
		Async:        false, // the Producer needs the write result
	}

	switch opts.Compression {
	case "none", "":
		wc.CompressionCodec = nil
	case "gzip":
		wc.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		wc.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		wc.CompressionCodec = compress.Lz4.Codec()
	case "zstd":
		wc.CompressionCodec = compress.Zstd.Codec()
	default:
		return kafka.WriterConfig{}, fmt.Errorf("%w: invalid kafka compression: %s", core.ErrConfigInvalid, opts.Compression)
	}
	return wc, nil
}

func (k *kafkaWriter) Name() string { return "kafka" }

func (k *kafkaWriter) Write(ctx context.Context, msgs [][]byte) error {
	batch := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		batch[i] = kafka.Message{Value: m}
	}
	return kafkaRemaining(msgs, k.w.WriteMessages(ctx, batch...))
}

// kafkaRemaining narrows a per-message kafka.WriteErrors down to the
// messages that failed.
func kafkaRemaining(msgs [][]byte, err error) error {
	var werrs kafka.WriteErrors
	if !errors.As(err, &werrs) || len(werrs) != len(msgs) {
		return err
	}
	var rest [][]byte
	for i, e := range werrs {
		if e != nil {
			rest = append(rest, msgs[i])
		}
	}
	if len(rest) == len(msgs) {
		return err
	}
	return &PartialWriteError{Remaining: rest, Err: err}
}

func (k *kafkaWriter) Close() error {
	return k.w.Close()
}
