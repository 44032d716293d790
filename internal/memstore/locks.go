package memstore

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Lock keys. Within one transaction keys are taken in this order: the cart,
// then products by ascending ID, then the order slot and the event sequence.
func cartKey(id string) string      { return "cart:" + id }
func productKey(id string) string   { return "product:" + id }
func orderKey(cartID string) string { return "order:" + cartID }
func sequenceKey(k string) string   { return "seq:" + k }

type lockTable struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func newLockTable() *lockTable {
	return &lockTable{sems: make(map[string]*semaphore.Weighted)}
}

func (t *lockTable) get(key string) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()
	sem, ok := t.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		t.sems[key] = sem
	}
	return sem
}

// lockSet is the set of exclusive locks held by one transaction.
type lockSet struct {
	table *lockTable
	held  []string
	index map[string]struct{}
}

func (l *lockSet) acquire(ctx context.Context, key string) error {
	if _, ok := l.index[key]; ok {
		return nil
	}
	if err := l.table.get(key).Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if l.index == nil {
		l.index = make(map[string]struct{})
	}
	l.index[key] = struct{}{}
	l.held = append(l.held, key)
	return nil
}

func (l *lockSet) releaseAll() {
	for i := len(l.held) - 1; i >= 0; i-- {
		l.table.get(l.held[i]).Release(1)
	}
	l.held = nil
	l.index = nil
}
