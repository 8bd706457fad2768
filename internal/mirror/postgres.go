package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/records"
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Postgres is a Store backed by database/sql and lib/pq. The table is
// created on first use. A failed connect or migrate is retried by the next
// operation.
type Postgres struct {
	dsn    string
	table  string
	openDB sqlOpenFunc

	mu sync.Mutex
	db *sql.DB
}

// NewPostgres returns a Postgres store for dsn. No connection is made until
// the first operation.
func NewPostgres(dsn string) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.NewValidationError("dsn", nil, "is required")
	}
	return &Postgres{dsn: dsn, table: TableName, openDB: sql.Open}, nil
}

// Upsert implements Store.
func (p *Postgres) Upsert(ctx context.Context, rec records.SourceRecord, remoteID int64, syncedAt time.Time) error {
	db, err := p.ensureReady(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, constants.MirrorOperationTimeout)
	defer cancel()

	row := NewRow(rec, remoteID, syncedAt)
	query := fmt.Sprintf(`
		INSERT INTO %s (part_no, price, weight, tag, collection, shopify_id, last_synced)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (part_no)
		DO UPDATE SET price = EXCLUDED.price,
			weight = EXCLUDED.weight,
			tag = EXCLUDED.tag,
			collection = EXCLUDED.collection,
			shopify_id = EXCLUDED.shopify_id,
			last_synced = EXCLUDED.last_synced`, quoteIdentifier(p.table))
	_, err = db.ExecContext(ctx, query,
		row.PartNo, row.Price.StringFixed(2), row.Weight, row.Tag, row.Collection, row.RemoteID, row.LastSynced)
	if err != nil {
		return errors.WrapResource("upsert", "mirror row", row.PartNo, err)
	}
	return nil
}

// Count implements Counter.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	db, err := p.ensureReady(ctx)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, constants.MirrorOperationTimeout)
	defer cancel()

	var n int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdentifier(p.table)).Scan(&n)
	if err != nil {
		return 0, errors.WrapResource("count", "mirror rows", "", err)
	}
	return n, nil
}

// Ping implements Pinger.
func (p *Postgres) Ping(ctx context.Context) error {
	db, err := p.ensureReady(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, constants.MirrorOperationTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return errors.WrapResource("ping", "mirror", "postgres", err)
	}
	return nil
}

// Close implements Store.
func (p *Postgres) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *Postgres) ensureReady(ctx context.Context) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db, nil
	}

	db, err := p.openDB("postgres", p.dsn)
	if err != nil {
		return nil, errors.WrapResource("connect", "mirror", "postgres", err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.MirrorOperationTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WrapResource("connect", "mirror", "postgres", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema(p.table)); err != nil {
		_ = db.Close()
		return nil, errors.WrapResource("migrate", "mirror", p.table, err)
	}
	p.db = db
	return db, nil
}

func postgresSchema(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			part_no VARCHAR(100) UNIQUE NOT NULL,
			price DECIMAL(10,2) NOT NULL DEFAULT 0,
			weight INTEGER NOT NULL DEFAULT 0,
			tag TEXT NOT NULL DEFAULT '',
			collection VARCHAR(100) NOT NULL DEFAULT '',
			shopify_id BIGINT,
			last_synced TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, quoteIdentifier(table))
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
