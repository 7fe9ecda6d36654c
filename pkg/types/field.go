package types

import (
	"fmt"
	"io"
)

// Field is a single typed value of a tuple.
type Field interface {
	// Serialize writes exactly Type().Size() bytes.
	Serialize(w io.Writer) error

	Type() Type

	String() string

	Equals(other Field) bool
}

// ParseField reads one field of type t from r.
func ParseField(r io.Reader, t Type) (Field, error) {
	switch t {
	case IntType:
		return parseIntField(r)
	case StringType:
		return parseStringField(r)
	default:
		return nil, fmt.Errorf("cannot parse field of type %s", t)
	}
}
