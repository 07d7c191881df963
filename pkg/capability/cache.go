package capability

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Cache is a badger-backed, TTL-bounded cache of a peer's last negotiated
// capability set, consulted before issuing Version RPCs. A cache miss
// always falls back to re-verifying over the wire; the cache only avoids
// repeat negotiation against an otherwise-static cluster.
type Cache struct {
	db *badger.DB
}

// OpenCache opens (creating if necessary) a badger database at dir.
func OpenCache(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open capability cache at %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns addr's cached capability set, if present and unexpired.
func (c *Cache) Get(addr string) (Set, bool) {
	var set Set
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(addr))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &set)
		})
	})
	if err != nil {
		return nil, false
	}
	return set, true
}

// Put stores addr's capability set with the cache's TTL, overwriting any
// prior entry.
func (c *Cache) Put(addr string, set Set, ttl ...time.Duration) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal capability set: %w", err)
	}
	d := defaultTTL
	if len(ttl) > 0 {
		d = ttl[0]
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(addr), data).WithTTL(d)
		return txn.SetEntry(entry)
	})
}

// Invalidate removes addr's cached entry, forcing the next lookup to
// re-negotiate over the wire.
func (c *Cache) Invalidate(addr string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(cacheKey(addr))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

var defaultTTL = 5 * time.Minute

// SetDefaultTTL overrides the TTL used by Put when no explicit TTL is
// given; cmd/blockd sets it once at startup from config.CapabilityConfig.TTL.
func SetDefaultTTL(ttl time.Duration) { defaultTTL = ttl }

func cacheKey(addr string) []byte { return []byte("cap:" + addr) }
