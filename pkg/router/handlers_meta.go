package router

import (
	"fmt"

	"github.com/robustmq/robustmq/pkg/kv"
	"github.com/robustmq/robustmq/pkg/types"
)

// KvEntry is the Set payload for the raw config-style KV mutation exposed
// directly to clients (distinct from the KV store's own internal storage —
// this is the user-facing "kv" surface named in spec section 6).
type KvEntry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

func handleKvSet(r *Router, payload []byte) (any, error) {
	entry, err := decode[KvEntry](payload)
	if err != nil {
		return nil, fmt.Errorf("decode kv entry: %w", err)
	}
	if err := r.kv.Put(kv.CFMeta, kvKey(entry.Key), entry.Value, r.source); err != nil {
		return nil, err
	}
	return entry, nil
}

func handleKvDelete(r *Router, payload []byte) (any, error) {
	key, err := decode[string](payload)
	if err != nil {
		return nil, fmt.Errorf("decode kv key: %w", err)
	}
	return r.deleteKey(kv.CFMeta, kvKey(key))
}

func handleSchemaSet(r *Router, payload []byte) (any, error) {
	schema, err := decode[types.Schema](payload)
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return r.putJSON(kv.CFMeta, schemaKey(schema.Name), schema)
}

func handleSchemaDelete(r *Router, payload []byte) (any, error) {
	name, err := decode[string](payload)
	if err != nil {
		return nil, fmt.Errorf("decode schema name: %w", err)
	}
	return r.deleteKey(kv.CFMeta, schemaKey(name))
}

func handleSchemaBindSet(r *Router, payload []byte) (any, error) {
	bind, err := decode[types.SchemaBind](payload)
	if err != nil {
		return nil, fmt.Errorf("decode schema bind: %w", err)
	}
	return r.putJSON(kv.CFMeta, schemaBindKey(bind.SchemaName, bind.ResourceID), bind)
}

func handleSchemaBindDelete(r *Router, payload []byte) (any, error) {
	bind, err := decode[types.SchemaBind](payload)
	if err != nil {
		return nil, fmt.Errorf("decode schema bind: %w", err)
	}
	return r.deleteKey(kv.CFMeta, schemaBindKey(bind.SchemaName, bind.ResourceID))
}

func handleResourceConfigSet(r *Router, payload []byte) (any, error) {
	cfg, err := decode[types.ResourceConfig](payload)
	if err != nil {
		return nil, fmt.Errorf("decode resource config: %w", err)
	}
	return r.putJSON(kv.CFMeta, resourceConfigKey(cfg.ResourceKey), cfg)
}

func handleResourceConfigDelete(r *Router, payload []byte) (any, error) {
	resourceKey, err := decode[string](payload)
	if err != nil {
		return nil, fmt.Errorf("decode resource key: %w", err)
	}
	return r.deleteKey(kv.CFMeta, resourceConfigKey(resourceKey))
}

func handleIdempotentDataSet(r *Router, payload []byte) (any, error) {
	data, err := decode[types.IdempotentData](payload)
	if err != nil {
		return nil, fmt.Errorf("decode idempotent data: %w", err)
	}
	return r.putJSON(kv.CFMeta, idempotentKey(data.ClientID, data.Pkid), data)
}

func handleIdempotentDataDelete(r *Router, payload []byte) (any, error) {
	data, err := decode[types.IdempotentData](payload)
	if err != nil {
		return nil, fmt.Errorf("decode idempotent data: %w", err)
	}
	return r.deleteKey(kv.CFMeta, idempotentKey(data.ClientID, data.Pkid))
}

func handleOffsetSet(r *Router, payload []byte) (any, error) {
	offset, err := decode[types.GroupOffset](payload)
	if err != nil {
		return nil, fmt.Errorf("decode group offset: %w", err)
	}
	return r.putJSON(kv.CFStorage, offsetKey(offset.Group, offset.Shard), offset)
}

func handleOffsetDelete(r *Router, payload []byte) (any, error) {
	offset, err := decode[types.GroupOffset](payload)
	if err != nil {
		return nil, fmt.Errorf("decode group offset: %w", err)
	}
	return r.deleteKey(kv.CFStorage, offsetKey(offset.Group, offset.Shard))
}
