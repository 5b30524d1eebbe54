// Package memory implements an in-memory mempool.Store, used by tests and by the direct (non-Tor) mode.
package memory

import (
	"context"
	"sync"

	"sentinel/datamodel/mempool"
)

var _ mempool.Store = (*MempoolIndex)(nil)

type row struct {
	tx    mempool.Tx
	input mempool.Outpoint
}

// MempoolIndex keeps one row per (transaction, spent outpoint) pair, in insertion order,
// the same shape a relational join over transactions and inputs would produce.
type MempoolIndex struct {
	mu   sync.Mutex
	rows []row

	// Err, when set, is returned by every query.
	Err error
}

func New() *MempoolIndex {
	return &MempoolIndex{}
}

func (m *MempoolIndex) Put(ctx context.Context, tx mempool.Tx, inputs []mempool.Outpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	for _, in := range inputs {
		m.rows = append(m.rows, row{tx: tx, input: in})
	}
	return nil
}

func (m *MempoolIndex) QuerySpenders(ctx context.Context, o mempool.Outpoint) ([]mempool.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	var results []mempool.Tx
	for _, r := range m.rows {
		if r.input == o {
			results = append(results, r.tx)
		}
	}
	return results, nil
}

func (m *MempoolIndex) Enumerate(ctx context.Context) ([]mempool.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	seen := make(map[mempool.Tx]bool)
	var results []mempool.Tx
	for _, r := range m.rows {
		if !seen[r.tx] {
			seen[r.tx] = true
			results = append(results, r.tx)
		}
	}
	return results, nil
}

func (m *MempoolIndex) Close() error {
	return nil
}
