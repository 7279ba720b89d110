// Package symlock provides per-key mutual exclusion. The strategy engine and
// the portfolio ledger share one table so that a read-decide-write sequence
// for a symbol is never interleaved, while different symbols proceed in
// parallel.
package symlock

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

// Table is a sharded lock table keyed by symbol.
type Table struct {
	shards [shardCount]sync.Mutex
}

// New creates an empty lock table.
func New() *Table {
	return &Table{}
}

func (t *Table) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.shards[h.Sum32()%shardCount]
}

// Lock acquires the exclusive section for key and returns the unlock func.
func (t *Table) Lock(key string) func() {
	m := t.shard(key)
	m.Lock()
	return m.Unlock
}
