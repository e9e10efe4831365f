package source

// LiveConfig configures an AF_PACKET capture.
type LiveConfig struct {
	Interface     string
	SnapLen       int
	BufferSizeMB  int
	PollTimeoutMs int
	BPF           []string // raw "op jt jf k" program, see ParseBPF
}

func (c LiveConfig) withDefaults() LiveConfig {
	if c.SnapLen <= 0 {
		c.SnapLen = 65535
	}
	if c.BufferSizeMB <= 0 {
		c.BufferSizeMB = 8
	}
	if c.PollTimeoutMs <= 0 {
		c.PollTimeoutMs = 100
	}
	return c
}
