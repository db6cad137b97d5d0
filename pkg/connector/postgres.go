package connector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robustmq/robustmq/pkg/types"
)

// postgresPlugin inserts every record as one row (topic-derived key,
// timestamp, JSON payload) into cfg.Table, batched through a single
// pgx.Batch per SendBatch call.
type postgresPlugin struct {
	cfg *PostgresConfig
}

func newPostgresPlugin(cfg *PostgresConfig) *postgresPlugin { return &postgresPlugin{cfg: cfg} }

func (p *postgresPlugin) Validate() error { return p.cfg.Validate() }

func (p *postgresPlugin) InitSink(ctx context.Context) (SinkHandle, error) {
	pool, err := pgxpool.New(ctx, p.cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connector: connect: %w", err)
	}
	return pool, nil
}

func (p *postgresPlugin) SendBatch(ctx context.Context, handle SinkHandle, records []types.Record) error {
	pool := handle.(*pgxpool.Pool)

	insert := fmt.Sprintf(`INSERT INTO %s (record_key, record_timestamp, payload) VALUES ($1, $2, $3)`, p.cfg.Table)

	batch := &pgx.Batch{}
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("postgres connector: marshal record: %w", err)
		}
		batch.Queue(insert, rec.Key, rec.Timestamp, payload)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres connector: batch insert: %w", err)
		}
	}
	return nil
}

func (p *postgresPlugin) CleanupSink(handle SinkHandle) error {
	pool := handle.(*pgxpool.Pool)
	pool.Close()
	return nil
}
