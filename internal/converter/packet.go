package converter

import (
	"strconv"

	"firestige.xyz/ferry/internal/core"
	"firestige.xyz/ferry/internal/core/decoder"
	"firestige.xyz/ferry/internal/entropy"
	"firestige.xyz/ferry/internal/log"
	"firestige.xyz/ferry/internal/message"
	"firestige.xyz/ferry/internal/metrics"
	"firestige.xyz/ferry/internal/session"
)

// PacketConfig wires the optional stages of a PacketConverter.
type PacketConfig struct {
	LinkType uint32
	Decoder  decoder.Decoder   // nil uses decoder.NewDissector()
	Filter   Filter            // nil disables suppression
	Sampler  *session.Sampler  // non-nil switches to session mode
	Entropy  *entropy.Detector // non-nil enables high-entropy flagging
	Seq      *message.Sequence
	Logger   log.Logger
}

// PacketConverter dissects capture records. Each frame must start with the
// 16-byte capture-record header.
type PacketConverter struct {
	cfg    PacketConfig
	minLen int
}

func NewPacketConverter(cfg PacketConfig) *PacketConverter {
	if cfg.Decoder == nil {
		cfg.Decoder = decoder.NewDissector()
	}
	if cfg.Seq == nil {
		cfg.Seq = &message.Sequence{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger()
	}
	return &PacketConverter{
		cfg:    cfg,
		minLen: core.CaptureHeaderLen + decoder.MinHeaderLen(cfg.LinkType),
	}
}

func (c *PacketConverter) Name() string { return ModePacket }

func (c *PacketConverter) Convert(frame core.Frame, b *message.MessageBatch) core.Status {
	if len(frame) == 0 || len(frame) < c.minLen {
		return core.StatusFail
	}
	data := frame[core.CaptureHeaderLen:]

	res, err := c.cfg.Decoder.Dissect(data, c.cfg.LinkType)
	if err != nil {
		metrics.DissectErrorsTotal.Inc()
		if c.cfg.Logger.IsDebugEnabled() {
			c.cfg.Logger.WithError(err).WithField("len", len(data)).Debug("dissection failed")
		}
		return core.StatusFail
	}

	payload := res.Payload(data)
	if c.cfg.Filter != nil && c.cfg.Filter.Matches(payload) {
		return core.StatusPass
	}

	if c.cfg.Sampler != nil {
		if res.HasTuple && c.cfg.Sampler.Update(res.Tuple, payload) {
			c.cfg.Sampler.DrainReady(b, c.cfg.Seq)
		}
		return core.StatusSuccess
	}

	fields := make([]message.Field, 0, 7)
	fields = append(fields, message.Field{Name: core.FieldMessage, Value: data})
	if res.HasTuple {
		fields = append(fields, message.TupleFields(res.Tuple)...)
	}
	if c.cfg.Entropy != nil {
		if h, high := c.cfg.Entropy.Check(payload); high {
			metrics.HighEntropyTotal.Inc()
			fields = append(fields, message.Field{
				Name:  core.FieldEntropy,
				Value: strconv.AppendFloat(nil, h, 'f', 3, 64),
			})
		}
	}
	b.AddEntryFields(c.cfg.Seq.Next(), fields...)
	return core.StatusSuccess
}
