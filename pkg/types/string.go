package types

import (
	"encoding/binary"
	"fmt"
	"io"
)

// StringField is a string of at most StringMaxSize bytes.
type StringField struct {
	Value string
}

// NewStringField creates a StringField, truncating value to StringMaxSize bytes.
func NewStringField(value string) *StringField {
	if len(value) > StringMaxSize {
		value = value[:StringMaxSize]
	}
	return &StringField{Value: value}
}

// Serialize writes the string in its fixed-width format:
// a 4-byte big-endian length, the bytes, then zero padding up to StringMaxSize.
func (s *StringField) Serialize(w io.Writer) error {
	length := min(len(s.Value), StringMaxSize)

	buf := make([]byte, 4+StringMaxSize)
	binary.BigEndian.PutUint32(buf[:4], uint32(length))
	copy(buf[4:], s.Value[:length])

	_, err := w.Write(buf)
	return err
}

func (s *StringField) Type() Type {
	return StringType
}

func (s *StringField) String() string {
	return s.Value
}

func (s *StringField) Equals(other Field) bool {
	o, ok := other.(*StringField)
	return ok && o.Value == s.Value
}

func parseStringField(r io.Reader) (*StringField, error) {
	buf := make([]byte, 4+StringMaxSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(buf[:4])
	if length > StringMaxSize {
		return nil, fmt.Errorf("string length %d exceeds maximum %d", length, StringMaxSize)
	}
	return &StringField{Value: string(buf[4 : 4+length])}, nil
}
