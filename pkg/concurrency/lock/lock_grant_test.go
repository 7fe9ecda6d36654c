package lock

import (
	"testing"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/primitives"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_Rules(t *testing.T) {
	pid := primitives.NewPageID(1, 0)
	t1 := transaction.NewTransactionID()
	t2 := transaction.NewTransactionID()
	t3 := transaction.NewTransactionID()

	type holder struct {
		tid transaction.TransactionID
		lt  LockType
	}

	tests := []struct {
		name      string
		holders   []holder
		requested LockType
		want      grantDecision
	}{
		{"unlocked page, shared", nil, SharedLock, grantNew},
		{"unlocked page, exclusive", nil, ExclusiveLock, grantNew},
		{"sole shared holder upgrades", []holder{{t1, SharedLock}}, ExclusiveLock, grantUpgrade},
		{"shared holder with company cannot upgrade", []holder{{t1, SharedLock}, {t2, SharedLock}}, ExclusiveLock, mustWait},
		{"exclusive holder asking shared is a no-op", []holder{{t1, ExclusiveLock}}, SharedLock, alreadyHeld},
		{"exclusive holder asking exclusive is a no-op", []holder{{t1, ExclusiveLock}}, ExclusiveLock, alreadyHeld},
		{"shared holder asking shared is a no-op", []holder{{t1, SharedLock}}, SharedLock, alreadyHeld},
		{"one other reader, shared request", []holder{{t2, SharedLock}}, SharedLock, grantNew},
		{"two other readers, shared request", []holder{{t2, SharedLock}, {t3, SharedLock}}, SharedLock, grantNew},
		{"other writer, shared request", []holder{{t2, ExclusiveLock}}, SharedLock, mustWait},
		{"other reader, exclusive request", []holder{{t2, SharedLock}}, ExclusiveLock, mustWait},
		{"two other readers, exclusive request", []holder{{t2, SharedLock}, {t3, SharedLock}}, ExclusiveLock, mustWait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lt := NewLockTable()
			for _, h := range tt.holders {
				lt.AddLock(h.tid, pid, h.lt)
			}
			assert.Equal(t, tt.want, evaluate(lt, t1, pid, tt.requested))
		})
	}
}

func TestBlockers(t *testing.T) {
	pid := primitives.NewPageID(1, 0)
	t1 := transaction.NewTransactionID()
	t2 := transaction.NewTransactionID()
	t3 := transaction.NewTransactionID()

	lt := NewLockTable()
	lt.AddLock(t1, pid, SharedLock)
	lt.AddLock(t2, pid, SharedLock)

	assert.ElementsMatch(t, []transaction.TransactionID{t2}, blockers(lt, t1, pid, ExclusiveLock))
	assert.Empty(t, blockers(lt, t3, pid, SharedLock))
	assert.ElementsMatch(t, []transaction.TransactionID{t1, t2}, blockers(lt, t3, pid, ExclusiveLock))
}

func TestLockTypeRelations(t *testing.T) {
	assert.True(t, ExclusiveLock.Covers(SharedLock))
	assert.True(t, ExclusiveLock.Covers(ExclusiveLock))
	assert.True(t, SharedLock.Covers(SharedLock))
	assert.False(t, SharedLock.Covers(ExclusiveLock))

	assert.True(t, SharedLock.CompatibleWith(SharedLock))
	assert.False(t, SharedLock.CompatibleWith(ExclusiveLock))
	assert.False(t, ExclusiveLock.CompatibleWith(SharedLock))
	assert.False(t, ExclusiveLock.CompatibleWith(ExclusiveLock))

	assert.Equal(t, ExclusiveLock, LockTypeFor(transaction.ReadWrite))
	assert.Equal(t, SharedLock, LockTypeFor(transaction.ReadOnly))
}
