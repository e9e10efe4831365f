package converter

import (
	"firestige.xyz/ferry/internal/core"
	"firestige.xyz/ferry/internal/message"
)

// LogConverter records each line as one entry unless the filter matches it.
type LogConverter struct {
	filter Filter
	seq    *message.Sequence
}

// NewLogConverter creates a LogConverter. filter may be nil.
func NewLogConverter(filter Filter, seq *message.Sequence) *LogConverter {
	if seq == nil {
		seq = &message.Sequence{}
	}
	return &LogConverter{filter: filter, seq: seq}
}

func (c *LogConverter) Name() string { return ModeLog }

func (c *LogConverter) Convert(frame core.Frame, b *message.MessageBatch) core.Status {
	if len(frame) == 0 {
		return core.StatusFail
	}
	if c.filter != nil && c.filter.Matches(frame) {
		return core.StatusPass
	}
	b.AddEntry(c.seq.Next(), core.FieldMessage, frame)
	return core.StatusSuccess
}
