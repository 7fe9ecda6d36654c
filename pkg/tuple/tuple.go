package tuple

import (
	"fmt"
	"io"
	"strings"

	"heapstore/pkg/dberror"
	"heapstore/pkg/types"
)

// Tuple is one row: a value for every field of its schema plus, once stored,
// the location of its slot.
type Tuple struct {
	TupleDesc *TupleDescription
	fields    []types.Field
	RecordID  *RecordID // nil until the tuple is placed on a page
}

func NewTuple(td *TupleDescription) *Tuple {
	return &Tuple{
		TupleDesc: td,
		fields:    make([]types.Field, td.NumFields()),
	}
}

// SetField stores field at position i. The field type must match the schema.
func (t *Tuple) SetField(i int, field types.Field) error {
	if i < 0 || i >= len(t.fields) {
		return fmt.Errorf("field index %d out of bounds [0, %d)", i, len(t.fields))
	}

	expectedType := t.TupleDesc.Types[i]
	if field == nil || field.Type() != expectedType {
		return dberror.NewSchemaMismatch(
			fmt.Sprintf("field %d: expected %v, got %v", i, expectedType, fieldType(field)))
	}

	t.fields[i] = field
	return nil
}

func (t *Tuple) GetField(i int) (types.Field, error) {
	if i < 0 || i >= len(t.fields) {
		return nil, fmt.Errorf("field index %d out of bounds [0, %d)", i, len(t.fields))
	}
	return t.fields[i], nil
}

// Conforms checks that t has a value of the right type for every field of td.
func (t *Tuple) Conforms(td *TupleDescription) error {
	if !td.Equals(t.TupleDesc) {
		return dberror.NewSchemaMismatch(fmt.Sprintf("tuple schema %s, table schema %s", t.TupleDesc, td))
	}
	for i, f := range t.fields {
		if f == nil {
			return dberror.NewSchemaMismatch(fmt.Sprintf("field %d is not set", i))
		}
		if f.Type() != td.Types[i] {
			return dberror.NewSchemaMismatch(
				fmt.Sprintf("field %d: expected %v, got %v", i, td.Types[i], f.Type()))
		}
	}
	return nil
}

// Serialize writes every field in schema order. All fields must be set.
func (t *Tuple) Serialize(w io.Writer) error {
	for i, f := range t.fields {
		if f == nil {
			return fmt.Errorf("field %d is not set", i)
		}
		if err := f.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Parse reads one tuple of schema td from r.
func Parse(r io.Reader, td *TupleDescription) (*Tuple, error) {
	t := NewTuple(td)
	for i, fieldType := range td.Types {
		f, err := types.ParseField(r, fieldType)
		if err != nil {
			return nil, fmt.Errorf("failed to parse field %d: %w", i, err)
		}
		t.fields[i] = f
	}
	return t, nil
}

// Equals compares schemas and field values; record IDs are ignored.
func (t *Tuple) Equals(other *Tuple) bool {
	if other == nil || !t.TupleDesc.Equals(other.TupleDesc) {
		return false
	}
	for i, f := range t.fields {
		o := other.fields[i]
		if f == nil || o == nil {
			if f != o {
				return false
			}
			continue
		}
		if !f.Equals(o) {
			return false
		}
	}
	return true
}

func (t *Tuple) String() string {
	parts := make([]string, 0, len(t.fields))
	for _, field := range t.fields {
		if field != nil {
			parts = append(parts, field.String())
		} else {
			parts = append(parts, "null")
		}
	}
	return strings.Join(parts, "\t")
}

// Clone copies the field values. The clone has no record ID.
func (t *Tuple) Clone() *Tuple {
	newTup := NewTuple(t.TupleDesc)
	copy(newTup.fields, t.fields)
	return newTup
}

func fieldType(f types.Field) string {
	if f == nil {
		return "nil"
	}
	return f.Type().String()
}
