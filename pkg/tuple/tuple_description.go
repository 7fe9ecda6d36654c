package tuple

import (
	"fmt"
	"strings"

	"heapstore/pkg/types"
)

// TupleDescription is the schema of a table: an ordered list of field types
// with optional names. It is immutable once created.
type TupleDescription struct {
	Types      []types.Type
	FieldNames []string
}

// NewTupleDesc copies the given types and names into a new schema.
// fieldNames may be nil; otherwise it must have one name per type.
func NewTupleDesc(fieldTypes []types.Type, fieldNames []string) (*TupleDescription, error) {
	if len(fieldTypes) < 1 {
		return nil, fmt.Errorf("must provide at least one field type")
	}

	typesCopy := make([]types.Type, len(fieldTypes))
	copy(typesCopy, fieldTypes)

	var namesCopy []string
	if fieldNames != nil {
		if len(fieldNames) != len(fieldTypes) {
			return nil, fmt.Errorf("field names length (%d) must match field types length (%d)",
				len(fieldNames), len(fieldTypes))
		}
		namesCopy = make([]string, len(fieldNames))
		copy(namesCopy, fieldNames)
	}

	return &TupleDescription{
		Types:      typesCopy,
		FieldNames: namesCopy,
	}, nil
}

func (td *TupleDescription) NumFields() int {
	return len(td.Types)
}

func (td *TupleDescription) GetFieldName(i int) (string, error) {
	if i < 0 || i >= len(td.Types) {
		return "", fmt.Errorf("field index %d out of bounds [0, %d)", i, len(td.Types))
	}
	if td.FieldNames == nil {
		return "", nil
	}
	return td.FieldNames[i], nil
}

func (td *TupleDescription) TypeAtIndex(i int) (types.Type, error) {
	if i < 0 || i >= len(td.Types) {
		return 0, fmt.Errorf("field index %d out of bounds [0, %d)", i, len(td.Types))
	}
	return td.Types[i], nil
}

// GetSize returns the width in bytes of one serialized tuple of this schema.
func (td *TupleDescription) GetSize() int {
	size := 0
	for _, fieldType := range td.Types {
		size += fieldType.Size()
	}
	return size
}

// Equals compares field types only; names do not take part.
func (td *TupleDescription) Equals(other *TupleDescription) bool {
	if other == nil || len(td.Types) != len(other.Types) {
		return false
	}
	for i, fieldType := range td.Types {
		if fieldType != other.Types[i] {
			return false
		}
	}
	return true
}

func (td *TupleDescription) String() string {
	parts := make([]string, 0, len(td.Types))
	for i, fieldType := range td.Types {
		name := "null"
		if td.FieldNames != nil {
			name = td.FieldNames[i]
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", fieldType, name))
	}
	return strings.Join(parts, ",")
}

func (td *TupleDescription) FindFieldIndex(fieldName string) (int, error) {
	for i := range td.FieldNames {
		if td.FieldNames[i] == fieldName {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %s not found", fieldName)
}

// ParseSchema builds an unnamed schema from a comma separated type list such
// as "int,string,int".
func ParseSchema(spec string) (*TupleDescription, error) {
	var fieldTypes []types.Type
	for _, name := range strings.Split(spec, ",") {
		t, err := types.ParseType(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		fieldTypes = append(fieldTypes, t)
	}
	return NewTupleDesc(fieldTypes, nil)
}
