package storage

// Namespace partitions the flat Database keyspace into the record kinds
// named in spec.md §4.1: blocks, the hash index, utxo, accounts, orders,
// authorities, governance, and node metadata.
type Namespace string

const (
	NamespaceBlocks       Namespace = "blocks"
	NamespaceBlockByHash  Namespace = "block_by_hash"
	NamespaceTxIndex      Namespace = "tx_index"
	NamespaceUTXO         Namespace = "utxo"
	NamespaceAccounts     Namespace = "accounts"
	NamespaceOrders       Namespace = "orders"
	NamespaceAuthorities  Namespace = "authorities"
	NamespaceGovernance   Namespace = "governance"
	NamespaceMeta         Namespace = "meta"
)

// KvStore is a namespaced view over a Database: every key is prefixed with
// its namespace so unrelated record kinds never collide, and callers never
// construct raw keys by hand.
type KvStore struct {
	db Database
}

// NewKvStore wraps db with namespace-aware accessors.
func NewKvStore(db Database) *KvStore {
	return &KvStore{db: db}
}

func namespacedKey(ns Namespace, key string) []byte {
	out := make([]byte, 0, len(ns)+1+len(key))
	out = append(out, ns...)
	out = append(out, '/')
	out = append(out, key...)
	return out
}

// Get fetches a single record.
func (s *KvStore) Get(ns Namespace, key string) ([]byte, error) {
	return s.db.Get(namespacedKey(ns, key))
}

// Put writes a single record.
func (s *KvStore) Put(ns Namespace, key string, value []byte) error {
	return s.db.Put(namespacedKey(ns, key), value)
}

// Delete removes a single record.
func (s *KvStore) Delete(ns Namespace, key string) error {
	return s.db.Delete(namespacedKey(ns, key))
}

// Scan returns every record in ns, in ascending key order, with the
// namespace prefix stripped from each returned key.
func (s *KvStore) Scan(ns Namespace) ([]KV, error) {
	prefix := namespacedKey(ns, "")
	raw, err := s.db.Scan(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]KV, len(raw))
	for i, kv := range raw {
		out[i] = KV{Key: kv.Key[len(prefix):], Value: kv.Value}
	}
	return out, nil
}

// NamespacedBatch is a Batch whose Put/Delete calls are namespace-qualified,
// used by the chain manager to stage an entire block's worth of ledger,
// order-book, and authority updates for one atomic WriteBatch commit.
type NamespacedBatch struct {
	b *Batch
}

// NewBatch starts a namespaced batch against this store.
func (s *KvStore) NewBatch() *NamespacedBatch {
	return &NamespacedBatch{b: NewBatch()}
}

// Put stages a namespaced write.
func (nb *NamespacedBatch) Put(ns Namespace, key string, value []byte) {
	nb.b.Put(namespacedKey(ns, key), value)
}

// Delete stages a namespaced removal.
func (nb *NamespacedBatch) Delete(ns Namespace, key string) {
	nb.b.Delete(namespacedKey(ns, key))
}

// Commit atomically applies every staged operation.
func (s *KvStore) Commit(nb *NamespacedBatch) error {
	return s.db.WriteBatch(nb.b)
}

// Close closes the underlying database.
func (s *KvStore) Close() error {
	return s.db.Close()
}
