// Package kv implements the Persistence KV component (spec 4.1): a single
// embedded ordered-key store with column families, generalizing the
// teacher's BoltStore (one bolt.DB, one bucket per entity, JSON values) to
// the column-family/prefix-scan contract the Command Router and Segment
// Store both depend on.
package kv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/metrics"
)

// Column families, per spec 4.1.
const (
	CFMeta    = "meta"
	CFMQTT    = "mqtt"
	CFStorage = "storage"
	CFCluster = "cluster"
)

var families = []string{CFMeta, CFMQTT, CFStorage, CFCluster}

const recordVersion byte = 1

// KV is the persistence column-family store.
type KV struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the KV at dataDir/robustmq.db with one
// top-level bucket per column family.
func Open(dataDir string) (*KV, error) {
	path := filepath.Join(dataDir, "robustmq.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open kv at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, cf := range families {
			if _, err := tx.CreateBucketIfNotExists([]byte(cf)); err != nil {
				return fmt.Errorf("create bucket %s: %w", cf, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &KV{db: db}, nil
}

// Close closes the underlying database.
func (k *KV) Close() error { return k.db.Close() }

func bucket(tx *bolt.Tx, cf string) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(cf))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", robustmqerrors.ErrFamilyNotAvailable, cf)
	}
	return b, nil
}

// encodeRecord length-prefixes value with a version byte, so a reader can
// skip a record that fails to decode without corrupting a scan (4.1:
// "readers silently skip records that fail to deserialize").
func encodeRecord(value []byte) []byte {
	out := make([]byte, 5+len(value))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(value)))
	out[4] = recordVersion
	copy(out[5:], value)
	return out
}

func decodeRecord(raw []byte) ([]byte, bool) {
	if len(raw) < 5 {
		return nil, false
	}
	n := binary.BigEndian.Uint32(raw[0:4])
	if uint32(len(raw)-5) != n {
		return nil, false
	}
	return raw[5:], true
}

func observe(op, source string, start time.Time, err error) {
	metrics.NewTimerAt(start).ObserveDurationVec(metrics.KVOpDuration, op, source)
	if err != nil {
		metrics.KVOpFailuresTotal.WithLabelValues(op, "error").Inc()
	}
}

// Put stores value under key in column family cf.
func (k *KV) Put(cf, key string, value []byte, source string) error {
	start := time.Now()
	err := k.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, cf)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), encodeRecord(value))
	})
	observe("put", source, start, err)
	return err
}

// Get retrieves the value stored under key, or ok=false if absent or
// malformed (treated as absent per the forward-compatibility contract).
func (k *KV) Get(cf, key string, source string) (value []byte, ok bool, err error) {
	start := time.Now()
	err = k.db.View(func(tx *bolt.Tx) error {
		b, ferr := bucket(tx, cf)
		if ferr != nil {
			return ferr
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		v, decoded := decodeRecord(raw)
		if !decoded {
			return nil
		}
		value = append([]byte(nil), v...)
		ok = true
		return nil
	})
	observe("get", source, start, err)
	return value, ok, err
}

// Exists reports whether key is present in cf.
func (k *KV) Exists(cf, key string, source string) (bool, error) {
	_, ok, err := k.Get(cf, key, source)
	return ok, err
}

// Delete removes key from cf. Deleting an absent key is a no-op.
func (k *KV) Delete(cf, key string, source string) error {
	start := time.Now()
	err := k.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, cf)
		if err != nil {
			return err
		}
		return b.Delete([]byte(key))
	})
	observe("delete", source, start, err)
	return err
}

// DeletePrefix removes every key in cf beginning with prefix.
func (k *KV) DeletePrefix(cf, prefix string, source string) error {
	start := time.Now()
	err := k.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, cf)
		if err != nil {
			return err
		}
		return deletePrefixLocked(b, prefix)
	})
	observe("delete_prefix", source, start, err)
	return err
}

func deletePrefixLocked(b *bolt.Bucket, prefix string) error {
	c := b.Cursor()
	p := []byte(prefix)
	var toDelete [][]byte
	for key, _ := c.Seek(p); key != nil && bytes.HasPrefix(key, p); key, _ = c.Next() {
		toDelete = append(toDelete, append([]byte(nil), key...))
	}
	for _, key := range toDelete {
		if err := b.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRange removes every key in cf with from <= key < to.
func (k *KV) DeleteRange(cf, from, to string, source string) error {
	start := time.Now()
	err := k.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, cf)
		if err != nil {
			return err
		}
		c := b.Cursor()
		lo, hi := []byte(from), []byte(to)
		var toDelete [][]byte
		for key, _ := c.Seek(lo); key != nil && bytes.Compare(key, hi) < 0; key, _ = c.Next() {
			toDelete = append(toDelete, append([]byte(nil), key...))
		}
		for _, key := range toDelete {
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	observe("delete_range", source, start, err)
	return err
}

// Pair is one (key, value) result of a prefix scan.
type Pair struct {
	Key   string
	Value []byte
}

// ScanPrefix returns every (key, value) in cf whose key begins with prefix,
// in key order. Records that fail to decode are silently skipped.
func (k *KV) ScanPrefix(cf, prefix string, source string) ([]Pair, error) {
	start := time.Now()
	var out []Pair
	err := k.db.View(func(tx *bolt.Tx) error {
		b, ferr := bucket(tx, cf)
		if ferr != nil {
			return ferr
		}
		c := b.Cursor()
		p := []byte(prefix)
		for key, raw := c.Seek(p); key != nil && bytes.HasPrefix(key, p); key, raw = c.Next() {
			v, ok := decodeRecord(raw)
			if !ok {
				continue
			}
			out = append(out, Pair{Key: string(key), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	observe("scan_prefix", source, start, err)
	return out, err
}

// Snapshot streams every (cf, key, value) triple in the store, used by the
// Raft FSM to build a full-state snapshot (spec 4.4).
func (k *KV) Snapshot(fn func(cf, key string, value []byte) error) error {
	return k.db.View(func(tx *bolt.Tx) error {
		for _, cf := range families {
			b := tx.Bucket([]byte(cf))
			if b == nil {
				continue
			}
			if err := b.ForEach(func(key, raw []byte) error {
				v, ok := decodeRecord(raw)
				if !ok {
					return nil
				}
				return fn(cf, string(key), v)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Restore discards the current content of every column family and
// rewrites it from entries, used when the Raft FSM installs a snapshot.
func (k *KV) Restore(entries func(yield func(cf, key string, value []byte) error) error) error {
	return k.db.Update(func(tx *bolt.Tx) error {
		for _, cf := range families {
			if err := tx.DeleteBucket([]byte(cf)); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket([]byte(cf)); err != nil {
				return err
			}
		}
		return entries(func(cf, key string, value []byte) error {
			b := tx.Bucket([]byte(cf))
			if b == nil {
				return fmt.Errorf("%w: %s", robustmqerrors.ErrFamilyNotAvailable, cf)
			}
			return b.Put([]byte(key), encodeRecord(value))
		})
	})
}
