package daemon

import (
	"fmt"

	"firestige.xyz/ferry/internal/config"
	"firestige.xyz/ferry/internal/converter"
	"firestige.xyz/ferry/internal/entropy"
	"firestige.xyz/ferry/internal/log"
	"firestige.xyz/ferry/internal/matcher"
	"firestige.xyz/ferry/internal/message"
	"firestige.xyz/ferry/internal/session"
	"firestige.xyz/ferry/internal/source"
)

// openSource opens the live interface when one is configured, otherwise
// the input path. No path reads stdin.
func openSource(in config.InputConfig) (source.Source, error) {
	if in.Interface != "" {
		return source.OpenLive(source.LiveConfig{
			Interface: in.Interface,
			SnapLen:   in.SnapLen,
			BPF:       in.BPF,
		})
	}
	path := in.Path
	if path == "" {
		path = "-"
	}
	return source.Open(path, source.Options{MaxLineBytes: in.MaxLineBytes})
}

// buildConverter picks the converter for the input kind and the configured
// mode. m may be nil.
func buildConverter(cfg *config.Config, src source.Source, m *matcher.Matcher, logger log.Logger) (converter.Converter, error) {
	mode, err := converter.Resolve(cfg.Input.Mode, src.Kind() == source.KindPacket)
	if err != nil {
		return nil, err
	}

	// a nil *Matcher must not become a non-nil Filter
	var filter converter.Filter
	if m != nil {
		filter = m
	}
	seq := &message.Sequence{}

	switch mode {
	case converter.ModePacket:
		pc := converter.PacketConfig{
			LinkType: src.LinkType(),
			Filter:   filter,
			Seq:      seq,
			Logger:   logger.WithField("component", "converter"),
		}
		if cfg.Session.Enabled {
			pc.Sampler = session.New(session.Config{
				MinSampleSize: cfg.Session.MinSampleSize,
				MaxSampleSize: cfg.Session.MaxSampleSize,
				MaxFlows:      cfg.Session.MaxFlows,
			})
		}
		if cfg.Entropy.Enabled {
			pc.Entropy = &entropy.Detector{Threshold: cfg.Entropy.Threshold, MinSize: cfg.Entropy.MinSize}
		}
		return converter.NewPacketConverter(pc), nil

	case converter.ModeLog:
		if cfg.Session.Enabled || cfg.Entropy.Enabled {
			logger.Warn("session sampling and entropy flagging apply to packet input only")
		}
		return converter.NewLogConverter(filter, seq), nil

	case converter.ModeNull:
		return converter.NullConverter{}, nil
	}
	return nil, fmt.Errorf("unhandled converter mode %q", mode)
}
