package lock

import (
	"testing"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/primitives"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTable_AddUpgradeRelease(t *testing.T) {
	lt := NewLockTable()
	tid := transaction.NewTransactionID()
	p0 := primitives.NewPageID(1, 0)
	p1 := primitives.NewPageID(1, 1)

	lt.AddLock(tid, p0, SharedLock)
	assert.True(t, lt.HasSufficientLock(tid, p0, SharedLock))
	assert.False(t, lt.HasSufficientLock(tid, p0, ExclusiveLock))
	held, ok := lt.LockTypeOf(tid, p0)
	assert.True(t, ok)
	assert.Equal(t, SharedLock, held)

	lt.UpgradeLock(tid, p0)
	assert.True(t, lt.HasSufficientLock(tid, p0, ExclusiveLock))
	require.Len(t, lt.GetPageLocks(p0), 1)
	assert.Equal(t, ExclusiveLock, lt.GetPageLocks(p0)[0].LockType)

	lt.AddLock(tid, p1, SharedLock)
	assert.Equal(t, []primitives.PageID{p0, p1}, lt.PagesHeldBy(tid))

	assert.True(t, lt.ReleaseLock(tid, p0))
	assert.False(t, lt.ReleaseLock(tid, p0))
	assert.False(t, lt.IsPageLocked(p0))
	assert.True(t, lt.IsPageLocked(p1))
}

func TestLockTable_ReleaseAllLocks(t *testing.T) {
	lt := NewLockTable()
	t1 := transaction.NewTransactionID()
	t2 := transaction.NewTransactionID()

	for i := 0; i < 3; i++ {
		lt.AddLock(t1, primitives.NewPageID(2, primitives.PageNumber(i)), SharedLock)
	}
	lt.AddLock(t2, primitives.NewPageID(2, 0), SharedLock)

	released := lt.ReleaseAllLocks(t1)
	assert.Len(t, released, 3)
	assert.Empty(t, lt.PagesHeldBy(t1))
	assert.True(t, lt.IsPageLocked(primitives.NewPageID(2, 0)))
	assert.False(t, lt.IsPageLocked(primitives.NewPageID(2, 1)))

	assert.Nil(t, lt.ReleaseAllLocks(t1))
}
