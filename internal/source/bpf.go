package source

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"
)

// ParseBPF parses a classic BPF program given as "op jt jf k" lines, the
// format printed by `tcpdump -ddd`. A leading line holding only the
// instruction count is accepted and checked.
func ParseBPF(lines []string) ([]bpf.RawInstruction, error) {
	var fields [][]string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		fields = append(fields, strings.FieldsFunc(l, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		}))
	}
	if len(fields) == 0 {
		return nil, nil
	}

	if len(fields[0]) == 1 {
		count, err := strconv.Atoi(fields[0][0])
		if err != nil {
			return nil, fmt.Errorf("bpf: bad instruction count %q", fields[0][0])
		}
		fields = fields[1:]
		if count != len(fields) {
			return nil, fmt.Errorf("bpf: header declares %d instructions, got %d", count, len(fields))
		}
	}

	prog := make([]bpf.RawInstruction, len(fields))
	for i, f := range fields {
		if len(f) != 4 {
			return nil, fmt.Errorf("bpf: instruction %d: want 4 fields, got %d", i, len(f))
		}
		var vals [4]uint64
		bits := [4]int{16, 8, 8, 32}
		for j := range f {
			v, err := strconv.ParseUint(f[j], 0, bits[j])
			if err != nil {
				return nil, fmt.Errorf("bpf: instruction %d field %d: %w", i, j, err)
			}
			vals[j] = v
		}
		prog[i] = bpf.RawInstruction{Op: uint16(vals[0]), Jt: uint8(vals[1]), Jf: uint8(vals[2]), K: uint32(vals[3])}
	}

	// Reject programs the kernel would refuse to load.
	if _, allDecoded := bpf.Disassemble(prog); !allDecoded {
		return nil, fmt.Errorf("bpf: program contains unknown instructions")
	}
	return prog, nil
}
