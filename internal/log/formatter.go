package log

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// formatter renders entries through a pattern with the placeholders
// %time, %level, %field, %msg, %caller, %func and %n.
type formatter struct {
	pattern string
	time    string
}

func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	r := strings.NewReplacer(
		"%time", entry.Time.Format(f.time),
		"%level", strings.ToUpper(entry.Level.String()),
		"%field", buildFields(entry),
		"%msg", entry.Message,
		"%caller", caller(entry),
		"%func", function(entry),
		"%n", "\n",
	)
	return []byte(r.Replace(f.pattern)), nil
}

// caller renders "pkg/file.go:line".
func caller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	file := filepath.Base(entry.Caller.File)
	pkg := ""
	if fn := entry.Caller.Function; fn != "" {
		if slash := strings.LastIndex(fn, "/"); slash >= 0 {
			fn = fn[slash+1:]
		}
		if dot := strings.Index(fn, "."); dot >= 0 {
			pkg = fn[:dot]
		}
	}
	return fmt.Sprintf("%s/%s:%d", pkg, file, entry.Caller.Line)
}

func function(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	name := entry.Caller.Function
	if dot := strings.LastIndex(name, "."); dot >= 0 && dot+1 < len(name) {
		return name[dot+1:]
	}
	return name
}

// buildFields renders fields as key=value pairs sorted by key.
func buildFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, k+"="+fmt.Sprint(entry.Data[k]))
	}
	return strings.Join(fields, ",")
}
