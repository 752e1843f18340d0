// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	vouchers map[key][]generic.Voucher
	numbers  map[numberKey]bool
}

type key struct {
	Ledger   generic.LedgerID
	Category string
}

type numberKey struct {
	Ledger generic.LedgerID
	Number generic.VoucherNumber
}

func NewMemory() *Memory {
	return &Memory{
		vouchers: make(map[key][]generic.Voucher),
		numbers:  make(map[numberKey]bool),
	}
}

// Append adds a single voucher. Append-only.
func (m *Memory) Append(_ context.Context, v generic.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(v)
}

// AppendBatch adds multiple vouchers atomically.
func (m *Memory) AppendBatch(_ context.Context, vs []generic.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range vs {
		if m.numbers[numberKey{v.Ledger, v.VoucherNumber}] {
			return &generic.DuplicateVoucherError{Ledger: v.Ledger, VoucherNumber: v.VoucherNumber}
		}
	}
	for _, v := range vs {
		if err := m.appendLocked(v); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendLocked(v generic.Voucher) error {
	nk := numberKey{v.Ledger, v.VoucherNumber}
	if m.numbers[nk] {
		return &generic.DuplicateVoucherError{Ledger: v.Ledger, VoucherNumber: v.VoucherNumber}
	}

	k := key{Ledger: v.Ledger, Category: v.Category}
	vs := m.vouchers[k]

	// Insert after every voucher on the same date so insertion order is kept
	i := sort.Search(len(vs), func(i int) bool {
		return vs[i].VoucherDate.After(v.VoucherDate)
	})
	vs = append(vs, generic.Voucher{})
	copy(vs[i+1:], vs[i:])
	vs[i] = v
	m.vouchers[k] = vs
	m.numbers[nk] = true
	return nil
}

func (m *Memory) Load(_ context.Context, ledger generic.LedgerID, category string) ([]generic.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{Ledger: ledger, Category: category}
	result := make([]generic.Voucher, len(m.vouchers[k]))
	copy(result, m.vouchers[k])
	return result, nil
}

func (m *Memory) LoadRange(_ context.Context, ledger generic.LedgerID, category string, from, to generic.TimePoint) ([]generic.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterRange(m.vouchers[key{Ledger: ledger, Category: category}], from, to), nil
}

func (m *Memory) Exists(_ context.Context, ledger generic.LedgerID, number generic.VoucherNumber) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.numbers[numberKey{ledger, number}], nil
}

func filterRange(vs []generic.Voucher, from, to generic.TimePoint) []generic.Voucher {
	var result []generic.Voucher
	for _, v := range vs {
		if from.BeforeOrEqual(v.VoucherDate) && v.VoucherDate.BeforeOrEqual(to) {
			result = append(result, v)
		}
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	vsCopy := make(map[key][]generic.Voucher, len(tm.vouchers))
	for k, v := range tm.vouchers {
		vsCopy[k] = append([]generic.Voucher{}, v...)
	}
	numCopy := make(map[numberKey]bool, len(tm.numbers))
	for k, v := range tm.numbers {
		numCopy[k] = v
	}
	return memorySnapshot{vouchers: vsCopy, numbers: numCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.vouchers = s.vouchers
	tm.numbers = s.numbers
}

type memorySnapshot struct {
	vouchers map[key][]generic.Voucher
	numbers  map[numberKey]bool
}

// txMemoryView runs under the parent's write lock.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Append(_ context.Context, v generic.Voucher) error {
	return tv.parent.appendLocked(v)
}

func (tv *txMemoryView) AppendBatch(_ context.Context, vs []generic.Voucher) error {
	for _, v := range vs {
		if err := tv.parent.appendLocked(v); err != nil {
			return err
		}
	}
	return nil
}

func (tv *txMemoryView) Load(_ context.Context, ledger generic.LedgerID, category string) ([]generic.Voucher, error) {
	return append([]generic.Voucher{}, tv.parent.vouchers[key{Ledger: ledger, Category: category}]...), nil
}

func (tv *txMemoryView) LoadRange(_ context.Context, ledger generic.LedgerID, category string, from, to generic.TimePoint) ([]generic.Voucher, error) {
	return filterRange(tv.parent.vouchers[key{Ledger: ledger, Category: category}], from, to), nil
}

func (tv *txMemoryView) Exists(_ context.Context, ledger generic.LedgerID, number generic.VoucherNumber) (bool, error) {
	return tv.parent.numbers[numberKey{ledger, number}], nil
}
