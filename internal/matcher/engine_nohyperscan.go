//go:build !hyperscan

package matcher

import "errors"

func newHyperscanEngine([]string) (engine, error) {
	return nil, errors.New("hyperscan engine not available, rebuild with -tags hyperscan")
}
