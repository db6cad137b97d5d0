package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestKV(t *testing.T) *KV {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := openTestKV(t)

	require.NoError(t, store.Put(CFMeta, "cluster/name", []byte("robustmq"), "test"))

	value, ok, err := store.Get(CFMeta, "cluster/name", "test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "robustmq", string(value))
}

func TestGetMissingKeyIsNotFound(t *testing.T) {
	store := openTestKV(t)

	_, ok, err := store.Get(CFMeta, "does/not/exist", "test")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRemovesKey(t *testing.T) {
	store := openTestKV(t)
	require.NoError(t, store.Put(CFMQTT, "session/c1", []byte("x"), "test"))
	require.NoError(t, store.Delete(CFMQTT, "session/c1", "test"))

	_, ok, err := store.Get(CFMQTT, "session/c1", "test")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanPrefixReturnsOnlyMatches(t *testing.T) {
	store := openTestKV(t)
	require.NoError(t, store.Put(CFStorage, "journal/segment/s1/0", []byte("a"), "test"))
	require.NoError(t, store.Put(CFStorage, "journal/segment/s1/1", []byte("b"), "test"))
	require.NoError(t, store.Put(CFStorage, "journal/shard/s1", []byte("c"), "test"))

	pairs, err := store.ScanPrefix(CFStorage, "journal/segment/s1/", "test")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "journal/segment/s1/0", pairs[0].Key)
	assert.Equal(t, "journal/segment/s1/1", pairs[1].Key)
}

func TestDeletePrefixRemovesAllMatches(t *testing.T) {
	store := openTestKV(t)
	require.NoError(t, store.Put(CFMQTT, "mqtt/subscribe/c1/a", []byte("1"), "test"))
	require.NoError(t, store.Put(CFMQTT, "mqtt/subscribe/c1/b", []byte("2"), "test"))
	require.NoError(t, store.Put(CFMQTT, "mqtt/subscribe/c2/a", []byte("3"), "test"))

	require.NoError(t, store.DeletePrefix(CFMQTT, "mqtt/subscribe/c1/", "test"))

	pairs, err := store.ScanPrefix(CFMQTT, "mqtt/subscribe/", "test")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "mqtt/subscribe/c2/a", pairs[0].Key)
}

func TestDeleteRangeRemovesBoundedKeys(t *testing.T) {
	store := openTestKV(t)
	for _, k := range []string{"offset/g/0", "offset/g/1", "offset/g/2", "offset/g/3"} {
		require.NoError(t, store.Put(CFStorage, k, []byte("v"), "test"))
	}

	require.NoError(t, store.DeleteRange(CFStorage, "offset/g/1", "offset/g/3", "test"))

	pairs, err := store.ScanPrefix(CFStorage, "offset/g/", "test")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "offset/g/0", pairs[0].Key)
	assert.Equal(t, "offset/g/3", pairs[1].Key)
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	store := openTestKV(t)
	require.NoError(t, store.Put(CFMeta, "k1", []byte("v1"), "test"))
	require.NoError(t, store.Put(CFMQTT, "k2", []byte("v2"), "test"))

	type row struct{ cf, key string; value []byte }
	var rows []row
	require.NoError(t, store.Snapshot(func(cf, key string, value []byte) error {
		rows = append(rows, row{cf, key, append([]byte(nil), value...)})
		return nil
	}))
	require.Len(t, rows, 2)

	other := openTestKV(t)
	require.NoError(t, other.Restore(func(yield func(cf, key string, value []byte) error) error {
		for _, r := range rows {
			if err := yield(r.cf, r.key, r.value); err != nil {
				return err
			}
		}
		return nil
	}))

	value, ok, err := other.Get(CFMeta, "k1", "test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(value))
}

func TestExistsReflectsPresence(t *testing.T) {
	store := openTestKV(t)
	ok, err := store.Exists(CFMeta, "missing", "test")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(CFMeta, "present", []byte("1"), "test"))
	ok, err = store.Exists(CFMeta, "present", "test")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnknownColumnFamilyFails(t *testing.T) {
	store := openTestKV(t)
	_, _, err := store.Get("nope", "k", "test")
	require.Error(t, err)
}
