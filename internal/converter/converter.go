// Package converter turns raw frames into batch entries. A converter
// reports one of three outcomes per frame: Success (recorded or sampled),
// Pass (suppressed by the filter) or Fail (malformed input).
package converter

import (
	"fmt"

	"firestige.xyz/ferry/internal/core"
	"firestige.xyz/ferry/internal/message"
)

// Converter processes one frame into b.
type Converter interface {
	Name() string
	Convert(frame core.Frame, b *message.MessageBatch) core.Status
}

// Filter is the suppression check. *matcher.Matcher satisfies it.
type Filter interface {
	Matches(data []byte) bool
}

const (
	ModeAuto   = "auto"
	ModePacket = "packet"
	ModeLog    = "log"
	ModeNull   = "null"
)

// Resolve maps the configured mode and the detected input kind to a
// concrete converter mode. "auto" follows the input.
func Resolve(mode string, packetInput bool) (string, error) {
	switch mode {
	case ModeAuto, "":
		if packetInput {
			return ModePacket, nil
		}
		return ModeLog, nil
	case ModePacket:
		if !packetInput {
			return "", fmt.Errorf("%w: packet mode needs a capture input", core.ErrConfigInvalid)
		}
		return mode, nil
	case ModeLog, ModeNull:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: unknown converter mode %q", core.ErrConfigInvalid, mode)
	}
}

// NullConverter accepts every frame and records nothing.
type NullConverter struct{}

func (NullConverter) Name() string { return ModeNull }

func (NullConverter) Convert(core.Frame, *message.MessageBatch) core.Status {
	return core.StatusSuccess
}
