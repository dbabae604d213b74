package resolver

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/netgrove/bamsync/pkg/model"
)

// diskCache persists positive lookups across runs. Entries carry a
// badger TTL, so stale IDs age out without a sweeper.
type diskCache struct {
	db *badger.DB
}

func openDiskCache(dir string) (*diskCache, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &diskCache{db: db}, nil
}

func (d *diskCache) get(key string) (int64, bool, error) {
	var id int64
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeID(val)
			if err != nil {
				return err
			}
			id = decoded
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return id, true, nil
}

func (d *diskCache) put(key string, id int64, ttl time.Duration) error {
	return d.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), encodeID(id)).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

func (d *diskCache) delete(key string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err == badger.ErrKeyNotFound {
		return nil
	}
	return err
}

func (d *diskCache) flush() error {
	return d.db.DropAll()
}

func (d *diskCache) close() error {
	return d.db.Close()
}

func encodeID(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func decodeID(val []byte) (int64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("cache entry has %d bytes, want 8", len(val))
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}

// cacheKey canonicalizes a lookup into a stable key: the type, then the
// trimmed path segments joined by '|'. Segment trimming keeps CSV
// whitespace variants from splitting the cache.
func cacheKey(typ model.ObjectType, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(typ))
	for _, p := range parts {
		b.WriteByte('|')
		b.WriteString(strings.TrimSpace(p))
	}
	return b.String()
}
