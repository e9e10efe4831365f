package matcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ferry/internal/core"
)

func TestParsePatterns(t *testing.T) {
	input := "# comment\n\n  foo  \nbar\n   # indented comment\n\t\nba[zq]\r\n"
	patterns, err := ParsePatterns(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar", "ba[zq]"}, patterns)
}

func TestMatches(t *testing.T) {
	m, err := Compile([]string{"password=", "^GET /admin", `\x00\x01magic`})
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())

	tests := []struct {
		name string
		data string
		want bool
	}{
		{"middle of payload", "user=bob&password=secret", true},
		{"anchored at start", "GET /admin HTTP/1.1", true},
		{"anchor not at start", "POST /x GET /admin", false},
		{"binary pattern", "xx\x00\x01magicyy", true},
		{"no pattern", "hello world", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Matches([]byte(tt.data)))
		})
	}
}

func TestMatchesHighBytes(t *testing.T) {
	m, err := Compile([]string{`\xff\xfe`, `^\x80[\x90-\x9f]`, "é"})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"byte pair in the middle", []byte{0x41, 0xff, 0xfe, 0x42}, true},
		{"utf-8 encoding of U+00FF is not 0xff", []byte{0xc3, 0xbf, 0xfe}, false},
		{"byte class", []byte{0x80, 0x95, 0x00}, true},
		{"byte class miss", []byte{0x80, 0xa0}, false},
		{"non-ascii literal matches its utf-8 bytes", []byte("caf\xc3\xa9"), true},
		{"lone latin-1 byte is not the literal", []byte{'c', 'a', 'f', 0xe9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Matches(tt.data))
		})
	}
}

func TestMatchesDotCrossesNewline(t *testing.T) {
	m, err := Compile([]string{"a.b", `^x.*y$`})
	require.NoError(t, err)

	assert.True(t, m.Matches([]byte("a\nb")))
	assert.True(t, m.Matches([]byte("x\r\n\ny")))
	assert.True(t, m.Matches([]byte{'a', 0xff, 'b'}))
	assert.False(t, m.Matches([]byte("a\n\nb")))
}

func TestMatchesEmptyInput(t *testing.T) {
	m, err := Compile([]string{".*", "^$"})
	require.NoError(t, err)

	assert.False(t, m.Matches(nil))
	assert.False(t, m.Matches([]byte{}))
}

func TestZeroPatternsNeverMatch(t *testing.T) {
	m, err := Compile([]string{"# only a comment", "", "   "})
	require.NoError(t, err)

	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Matches([]byte("anything at all")))
}

func TestCompileInvalidPattern(t *testing.T) {
	_, err := Compile([]string{"ok", "bad(", "fine"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPatternCompile))
	assert.Contains(t, err.Error(), "pattern 2")
}

func TestCompileUnknownEngine(t *testing.T) {
	_, err := Compile([]string{"x"}, WithEngine("pcre"))
	assert.True(t, errors.Is(err, core.ErrPatternCompile))
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.txt")
	require.NoError(t, os.WriteFile(path, []byte("# deny\nsecret\n"), 0644))

	m, err := CompileFile(path)
	require.NoError(t, err)
	assert.True(t, m.Matches([]byte("top secret")))
	assert.Equal(t, []string{"secret"}, m.Patterns())

	_, err = CompileFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, errors.Is(err, core.ErrPatternCompile))
}

func TestReloadSwapsRules(t *testing.T) {
	m, err := Compile([]string{"alpha"})
	require.NoError(t, err)

	require.NoError(t, m.Reload([]string{"beta"}))
	assert.False(t, m.Matches([]byte("alpha")))
	assert.True(t, m.Matches([]byte("beta")))
}

func TestReloadFailureKeepsPreviousRules(t *testing.T) {
	m, err := Compile([]string{"alpha"})
	require.NoError(t, err)

	err = m.Reload([]string{"beta", "[unterminated"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPatternCompile))

	assert.True(t, m.Matches([]byte("alpha")))
	assert.False(t, m.Matches([]byte("beta")))
	assert.Equal(t, []string{"alpha"}, m.Patterns())
}

func TestReloadFileMissingKeepsRules(t *testing.T) {
	m, err := Compile([]string{"alpha"})
	require.NoError(t, err)

	assert.Error(t, m.ReloadFile(filepath.Join(t.TempDir(), "gone.txt")))
	assert.True(t, m.Matches([]byte("alpha")))
}

func TestConcurrentMatchAndReload(t *testing.T) {
	m, err := Compile([]string{"common", "v0"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if !m.Matches([]byte("xx common yy")) {
					t.Error("pattern present in every rule set must always match")
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, m.Reload([]string{"common", "v" + strings.Repeat("1", i)}))
	}
	close(stop)
	wg.Wait()
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\n"), 0644))

	m, err := CompileFile(path)
	require.NoError(t, err)

	w, err := NewWatcher(m, path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	replaceFile(t, path, "beta\n")
	assert.Eventually(t, func() bool {
		return m.Matches([]byte("beta")) && !m.Matches([]byte("alpha"))
	}, 5*time.Second, 20*time.Millisecond)

	// A broken edit leaves the last good rules in place.
	replaceFile(t, path, "(broken\n")
	time.Sleep(200 * time.Millisecond)
	assert.True(t, m.Matches([]byte("beta")))

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

// replaceFile swaps content in by rename so the watcher never sees a
// truncated file.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0644))
	require.NoError(t, os.Rename(tmp, path))
}

func BenchmarkMatches(b *testing.B) {
	m, err := Compile([]string{"password=", "^GET /admin", "token:[0-9a-f]{32}"})
	require.NoError(b, err)
	data := []byte(strings.Repeat("lorem ipsum dolor sit amet ", 40))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Matches(data)
	}
}
