package matcher

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// regexpEngine runs patterns over bytes, not text: every input byte is seen
// as the rune of the same value, so \xHH means the byte HH and . matches any
// single byte, newline included. This is the same contract the hyperscan
// engine gives.
type regexpEngine struct {
	re *regexp.Regexp
}

func newRegexpEngine(patterns []string) (engine, error) {
	groups := make([]string, len(patterns))
	for i, p := range patterns {
		groups[i] = "(?:" + byteLiterals(p) + ")"
	}
	re, err := regexp.Compile("(?s)" + strings.Join(groups, "|"))
	if err != nil {
		return nil, explainRegexpError(patterns, err)
	}
	return &regexpEngine{re: re}, nil
}

// byteLiterals rewrites non-ASCII characters in a pattern as the \xHH
// escapes of their UTF-8 encoding, so "é" still matches the bytes c3 a9.
func byteLiterals(p string) string {
	if isASCII(p) {
		return p
	}
	var b strings.Builder
	for _, r := range p {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
			continue
		}
		var enc [utf8.UTFMax]byte
		n := utf8.EncodeRune(enc[:], r)
		for _, c := range enc[:n] {
			fmt.Fprintf(&b, `\x%02x`, c)
		}
	}
	return b.String()
}

// explainRegexpError compiles patterns one at a time to name the offender.
func explainRegexpError(patterns []string, err error) error {
	for i, p := range patterns {
		if _, perr := regexp.Compile("(?s)" + byteLiterals(p)); perr != nil {
			return fmt.Errorf("pattern %d %q: %v", i+1, p, perr)
		}
	}
	return err
}

var widenPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 4096)
		return &b
	},
}

func (e *regexpEngine) Match(data []byte) (bool, error) {
	if isASCII(data) {
		return e.re.Match(data), nil
	}
	bp := widenPool.Get().(*[]byte)
	buf := (*bp)[:0]
	for _, c := range data {
		buf = utf8.AppendRune(buf, rune(c))
	}
	ok := e.re.Match(buf)
	*bp = buf
	widenPool.Put(bp)
	return ok, nil
}

func (e *regexpEngine) Close() error {
	return nil
}

func isASCII[T string | []byte](s T) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
