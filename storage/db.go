// Package storage provides the key-value persistence layer energychain's
// chain, mempool, and authority state are built on, grounded on the
// teacher's storage/db.go Database interface (MemDB for tests, LevelDB for
// production) generalized with Delete, prefix Scan, and atomic Batch so the
// namespaced KvStore in kvstore.go can commit a block's worth of state
// changes all-or-nothing.
package storage

import (
	"errors"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic key-value store. energychain runs against either
// backend interchangeably: MemDB in unit tests, LevelDB in a running node.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// Scan returns every key/value pair whose key has the given prefix, in
	// ascending key order.
	Scan(prefix []byte) ([]KV, error)
	// WriteBatch atomically applies every operation in b.
	WriteBatch(b *Batch) error
	Close() error
}

// KV is a single key/value pair returned by Scan.
type KV struct {
	Key   []byte
	Value []byte
}

// BatchOp tags whether a Batch entry is a put or a delete.
type BatchOp byte

const (
	OpPut BatchOp = iota
	OpDelete
)

type batchEntry struct {
	op    BatchOp
	key   []byte
	value []byte
}

// Batch accumulates puts and deletes to be applied atomically, used by the
// chain manager to commit a block's state transition as a single unit
// (spec.md §4.5 "all-or-nothing commit").
type Batch struct {
	entries []batchEntry
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put stages a key/value write.
func (b *Batch) Put(key, value []byte) {
	b.entries = append(b.entries, batchEntry{op: OpPut, key: key, value: value})
}

// Delete stages a key removal.
func (b *Batch) Delete(key []byte) {
	b.entries = append(b.entries, batchEntry{op: OpDelete, key: key})
}

// Len reports how many operations are staged.
func (b *Batch) Len() int {
	return len(b.entries)
}

// --- In-Memory DB (for testing) ---

// MemDB is an in-memory Database, safe for concurrent use.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB returns an empty in-memory database.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	db.data[string(key)] = cp
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) Scan(prefix []byte) ([]KV, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p := string(prefix)
	var out []KV
	for k, v := range db.data {
		if len(k) >= len(p) && k[:len(p)] == p {
			cp := make([]byte, len(v))
			copy(cp, v)
			out = append(out, KV{Key: []byte(k), Value: cp})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Key) < string(out[j].Key)
	})
	return out, nil
}

func (db *MemDB) WriteBatch(b *Batch) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, e := range b.entries {
		switch e.op {
		case OpPut:
			cp := make([]byte, len(e.value))
			copy(cp, e.value)
			db.data[string(e.key)] = cp
		case OpDelete:
			delete(db.data, string(e.key))
		}
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error {
	return nil
}

// --- Persistent DB (for a running node) ---

// LevelDB is a persistent key-value store backed by goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (ldb *LevelDB) Put(key, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LevelDB) Scan(prefix []byte) ([]KV, error) {
	iter := ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var out []KV
	for iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		out = append(out, KV{Key: k, Value: v})
	}
	return out, iter.Error()
}

func (ldb *LevelDB) WriteBatch(b *Batch) error {
	lb := new(leveldb.Batch)
	for _, e := range b.entries {
		switch e.op {
		case OpPut:
			lb.Put(e.key, e.value)
		case OpDelete:
			lb.Delete(e.key)
		}
	}
	return ldb.db.Write(lb, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}
