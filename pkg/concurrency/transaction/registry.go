package transaction

import (
	"fmt"
	"sync"
)

// TransactionRegistry tracks the transactions that have begun and not yet
// finished.
type TransactionRegistry struct {
	contexts map[TransactionID]*TransactionContext
	mutex    sync.RWMutex
}

func NewTransactionRegistry() *TransactionRegistry {
	return &TransactionRegistry{
		contexts: make(map[TransactionID]*TransactionContext),
	}
}

// Begin allocates a new transaction ID and registers its context.
func (tr *TransactionRegistry) Begin() *TransactionContext {
	ctx := NewTransactionContext(NewTransactionID())

	tr.mutex.Lock()
	tr.contexts[ctx.ID] = ctx
	tr.mutex.Unlock()

	return ctx
}

func (tr *TransactionRegistry) Get(tid TransactionID) (*TransactionContext, error) {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	ctx, exists := tr.contexts[tid]
	if !exists {
		return nil, fmt.Errorf("transaction %s not found", tid)
	}
	return ctx, nil
}

// Finish marks the transaction with its final status and forgets it.
// It returns the context so callers can report its statistics.
func (tr *TransactionRegistry) Finish(tid TransactionID, status TransactionStatus) (*TransactionContext, error) {
	tr.mutex.Lock()
	ctx, exists := tr.contexts[tid]
	delete(tr.contexts, tid)
	tr.mutex.Unlock()

	if !exists {
		return nil, fmt.Errorf("transaction %s not found", tid)
	}
	ctx.SetStatus(status)
	return ctx, nil
}

func (tr *TransactionRegistry) GetActive() []*TransactionContext {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	active := make([]*TransactionContext, 0, len(tr.contexts))
	for _, ctx := range tr.contexts {
		if ctx.IsActive() {
			active = append(active, ctx)
		}
	}
	return active
}

func (tr *TransactionRegistry) Count() int {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()
	return len(tr.contexts)
}
