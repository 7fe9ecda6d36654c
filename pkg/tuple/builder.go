package tuple

import (
	"fmt"

	"heapstore/pkg/types"
)

// Builder fills a tuple field by field in schema order. The first failing
// field sticks: later Add calls are ignored and Build reports it.
//
//	t, err := tuple.NewBuilder(td).AddInt(1).AddString("ada").Build()
type Builder struct {
	tuple *Tuple
	next  int
	err   error
}

func NewBuilder(td *TupleDescription) *Builder {
	return &Builder{tuple: NewTuple(td)}
}

func (b *Builder) AddInt(value int32) *Builder {
	return b.AddField(types.NewIntField(value))
}

func (b *Builder) AddString(value string) *Builder {
	return b.AddField(types.NewStringField(value))
}

// AddField sets the next field to f.
func (b *Builder) AddField(f types.Field) *Builder {
	if b.err != nil {
		return b
	}
	if b.next >= b.tuple.TupleDesc.NumFields() {
		b.err = fmt.Errorf("too many fields: schema has %d", b.tuple.TupleDesc.NumFields())
		return b
	}
	if err := b.tuple.SetField(b.next, f); err != nil {
		b.err = err
		return b
	}
	b.next++
	return b
}

// Build returns the tuple once every field of the schema is set.
func (b *Builder) Build() (*Tuple, error) {
	if b.err != nil {
		return nil, b.err
	}
	if want := b.tuple.TupleDesc.NumFields(); b.next != want {
		return nil, fmt.Errorf("incomplete tuple: expected %d fields, got %d", want, b.next)
	}
	return b.tuple, nil
}

// MustBuild panics where Build would return an error. Use it for fixtures.
func (b *Builder) MustBuild() *Tuple {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

// FromValues builds a tuple from Go values: int, int32 or string, matched
// against td in order.
func FromValues(td *TupleDescription, values ...any) (*Tuple, error) {
	b := NewBuilder(td)
	for i, v := range values {
		switch v := v.(type) {
		case int32:
			b.AddInt(v)
		case int:
			b.AddInt(int32(v))
		case string:
			b.AddString(v)
		case types.Field:
			b.AddField(v)
		default:
			return nil, fmt.Errorf("value %d: unsupported type %T", i, v)
		}
	}
	return b.Build()
}
