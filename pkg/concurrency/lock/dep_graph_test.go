package lock

import (
	"testing"

	"heapstore/pkg/concurrency/transaction"

	"github.com/stretchr/testify/assert"
)

func TestDependencyGraph_Cycle(t *testing.T) {
	dg := NewDependencyGraph()
	t1 := transaction.NewTransactionID()
	t2 := transaction.NewTransactionID()
	t3 := transaction.NewTransactionID()

	dg.AddEdge(t1, t2)
	dg.AddEdge(t2, t3)
	assert.False(t, dg.HasCycle())

	dg.AddEdge(t3, t1)
	assert.True(t, dg.HasCycle())

	dg.RemoveWaiter(t3)
	assert.False(t, dg.HasCycle())
	assert.ElementsMatch(t, []transaction.TransactionID{t1, t2}, dg.GetWaitingTransactions())

	dg.RemoveTransaction(t2)
	assert.Empty(t, dg.GetWaitingTransactions())
}

func TestDependencyGraph_SelfLoopIsCycle(t *testing.T) {
	dg := NewDependencyGraph()
	t1 := transaction.NewTransactionID()

	dg.AddEdge(t1, t1)
	assert.True(t, dg.HasCycle())
}
