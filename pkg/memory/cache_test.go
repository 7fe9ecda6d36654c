package memory

import (
	"testing"

	"heapstore/pkg/dberror"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/heap"
	"heapstore/pkg/tuple"
	"heapstore/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyPage(t *testing.T, id primitives.PageID) *heap.HeapPage {
	t.Helper()
	td, err := tuple.NewTupleDesc([]types.Type{types.IntType}, nil)
	require.NoError(t, err)
	hp, err := heap.NewEmptyHeapPage(id, td)
	require.NoError(t, err)
	return hp
}

func TestPageCache(t *testing.T) {
	c := NewPageCache(2)
	a, b := primitives.NewPageID(2, 0), primitives.NewPageID(1, 5)

	require.NoError(t, c.Put(a, emptyPage(t, a)))
	require.NoError(t, c.Put(b, emptyPage(t, b)))
	assert.True(t, c.IsFull())

	err := c.Put(primitives.NewPageID(1, 6), emptyPage(t, primitives.NewPageID(1, 6)))
	assert.ErrorIs(t, err, dberror.ErrCapacityExhausted)

	replacement := emptyPage(t, a)
	require.NoError(t, c.Put(a, replacement))
	got, ok := c.Get(a)
	require.True(t, ok)
	assert.Same(t, replacement, got)

	assert.Equal(t, []primitives.PageID{b, a}, c.GetAll())

	c.Remove(b)
	assert.False(t, c.Contains(b))
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Zero(t, c.Size())
	assert.Equal(t, 2, c.Capacity())
}
