package types

import "fmt"

// Type identifies the on-disk encoding of a field. Every type has a fixed
// width so that tuples of one schema occupy equal-sized slots.
type Type int

const (
	IntType Type = iota
	StringType
)

// StringMaxSize is the number of payload bytes reserved for every string field.
const StringMaxSize = 128

// Size returns the encoded width of the type in bytes.
func (t Type) Size() int {
	switch t {
	case IntType:
		return 4
	case StringType:
		return 4 + StringMaxSize
	default:
		return 0
	}
}

// String returns a string representation of the type
func (t Type) String() string {
	switch t {
	case IntType:
		return "INT_TYPE"
	case StringType:
		return "STRING_TYPE"
	default:
		return "UNKNOWN_TYPE"
	}
}

// ParseType maps a short name ("int", "string") to a Type.
func ParseType(name string) (Type, error) {
	switch name {
	case "int", "INT", "INT_TYPE":
		return IntType, nil
	case "string", "STRING", "STRING_TYPE":
		return StringType, nil
	default:
		return 0, fmt.Errorf("unknown field type %q", name)
	}
}
