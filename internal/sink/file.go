package sink

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/ferry/internal/core"
)

// RecordPrefixLen is the size of the big-endian length written before each
// message by the file writer.
const RecordPrefixLen = 4

// DefaultMaxRecordLen bounds the record length RecordReader accepts when no
// limit is given.
const DefaultMaxRecordLen = 64 << 20

// FileOptions configures the file writer. Path "-" writes to stdout
// without rotation.
type FileOptions struct {
	Path       string `mapstructure:"path"` // required
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type fileWriter struct {
	mu  sync.Mutex
	out io.WriteCloser
	buf []byte
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newFileWriter(options map[string]any) (Writer, error) {
	opts := FileOptions{MaxSizeMB: 100, MaxBackups: 5}
	if err := decodeOptions("file", options, &opts); err != nil {
		return nil, err
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: file sink requires path", core.ErrConfigInvalid)
	}

	if opts.Path == "-" {
		return &fileWriter{out: nopWriteCloser{os.Stdout}}, nil
	}
	return &fileWriter{out: &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}}, nil
}

func (f *fileWriter) Name() string { return "file" }

// Write frames each message with its length. Each message is a single
// write so a rotation never splits a record.
func (f *fileWriter) Write(_ context.Context, msgs [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, m := range msgs {
		f.buf = binary.BigEndian.AppendUint32(f.buf[:0], uint32(len(m)))
		f.buf = append(f.buf, m...)
		if _, err := f.out.Write(f.buf); err != nil {
			return partial(msgs, i, err)
		}
	}
	return nil
}

func (f *fileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Close()
}

// RecordReader reads back messages written by the file writer.
type RecordReader struct {
	r      io.Reader
	maxLen uint32
	hdr    [RecordPrefixLen]byte
}

// NewRecordReader reads records of at most maxLen bytes; maxLen <= 0 means
// DefaultMaxRecordLen. A longer length prefix is treated as corruption.
func NewRecordReader(r io.Reader, maxLen int) *RecordReader {
	if maxLen <= 0 || uint64(maxLen) > math.MaxUint32 {
		maxLen = DefaultMaxRecordLen
	}
	return &RecordReader{r: r, maxLen: uint32(maxLen)}
}

// Next returns the next message, or io.EOF after the last one.
func (rr *RecordReader) Next() ([]byte, error) {
	if _, err := io.ReadFull(rr.r, rr.hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: record prefix: %v", core.ErrMalformedInput, err)
	}
	n := binary.BigEndian.Uint32(rr.hdr[:])
	if n > rr.maxLen {
		return nil, fmt.Errorf("%w: record length %d exceeds limit %d", core.ErrMalformedInput, n, rr.maxLen)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(rr.r, msg); err != nil {
		return nil, fmt.Errorf("%w: record body: %v", core.ErrMalformedInput, err)
	}
	return msg, nil
}
