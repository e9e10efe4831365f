//go:build !linux

package source

import (
	"fmt"

	"firestige.xyz/ferry/internal/core"
)

// OpenLive is only supported on linux.
func OpenLive(cfg LiveConfig) (Source, error) {
	return nil, fmt.Errorf("%w: live capture requires linux", core.ErrConfigInvalid)
}
