// Package storage provides the shared BoltDB-backed persistence tier
// used by the Bus (durable message history and instance registration
// when the in-process fallback is the only storage available), the
// Board (post durability across restarts), and the Proposal Engine
// (the hash-chained audit ledger).
//
// Adapted from the teacher's internal/storage/bolt.go: the bucket
// schema, ACID-transaction-per-operation discipline, CRC-checked
// Open(), and sortable-timestamp-key pruning pattern all carry over;
// the schema itself is generalized from OCTOREFLEX's fixed
// baselines/ledger/meta buckets into an arbitrary named-bucket store
// any Queen component can open.
package storage

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// SchemaVersion is the current database schema version.
const SchemaVersion = "1"

const bucketMeta = "meta"

// DB wraps a BoltDB instance opened against a single file shared by
// every component that asks for a bucket.
type DB struct {
	db *bolt.DB
}

// Open opens (or creates) the BoltDB database at path and verifies
// its schema version. Buckets are created lazily by Bucket().
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return err
		}
		if meta.Get([]byte("schema_version")) == nil {
			return meta.Put([]byte("schema_version"), []byte(SchemaVersion))
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("storage: initialize %q: %w", path, err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketMeta)).Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf("storage: schema version mismatch: database has %q, queen requires %q", v, SchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error { return d.db.Close() }

// Bucket returns a handle scoped to the named bucket, creating it if
// it does not already exist.
func (d *DB) Bucket(name string) (*Bucket, error) {
	err := d.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create bucket %q: %w", name, err)
	}
	return &Bucket{db: d.db, name: []byte(name)}, nil
}

// Bucket is a typed-byte-value handle into one BoltDB bucket.
type Bucket struct {
	db   *bolt.DB
	name []byte
}

// Put writes key/value in a single ACID transaction.
func (b *Bucket) Put(key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.name).Put(key, value)
	})
}

// Get reads a value, returning (nil, nil) if key is absent.
func (b *Bucket) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.name).Get(key)
		if v != nil {
			out = make([]byte, len(v))
			copy(out, v)
		}
		return nil
	})
	return out, err
}

// Delete removes key, a no-op if it does not exist.
func (b *Bucket) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.name).Delete(key)
	})
}

// ForEach iterates key/value pairs in lexicographic key order.
func (b *Bucket) ForEach(fn func(key, value []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(b.name).ForEach(fn)
	})
}

// DeleteRangeBefore deletes every key strictly less than cutoffKey,
// the sortable-timestamp-prefix pruning pattern used by ledger-shaped
// buckets (Bus history, proposal audit trail).
func (b *Bucket) DeleteRangeBefore(cutoffKey []byte) (int, error) {
	deleted := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.name)
		c := bk.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			kc := make([]byte, len(k))
			copy(kc, k)
			toDelete = append(toDelete, kc)
		}
		for _, k := range toDelete {
			if err := bk.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
