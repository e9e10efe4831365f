// Package core defines core types.
package core

// Field names used in forwarded entries.
const (
	FieldMessage = "message"
	FieldEntropy = "entropy"

	// Reserved flow metadata fields, stored as fixed-width big-endian bytes.
	FieldSrc   = "src"   // 4 bytes
	FieldDst   = "dst"   // 4 bytes
	FieldSport = "sport" // 2 bytes
	FieldDport = "dport" // 2 bytes
	FieldProto = "proto" // 1 byte
)

// IsReservedField reports whether name is one of the flow metadata fields.
func IsReservedField(name string) bool {
	switch name {
	case FieldSrc, FieldDst, FieldSport, FieldDport, FieldProto:
		return true
	}
	return false
}
