// Package db is the PostgreSQL backend: each order is one JSONB row and the
// sequence counter is a single text value, mirroring the file layout.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/orderdesk/internal/store"
)

const counterName = "orders"

var (
	_ store.Backend = (*Database)(nil)
	_ store.Swapper = (*Database)(nil)
)

type Database struct {
	pool *pgxpool.Pool
}

func NewDatabase(ctx context.Context, connString string) (*Database, error) {

	err := Migrate(connString)

	if err != nil {
		return nil, fmt.Errorf("failed to migrate %w", err)
	}

	p, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	d := &Database{
		pool: p,
	}
	if err := d.ensureCounter(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return d, nil
}

// ensureCounter inserts the counter row once. A concurrent instance winning
// the insert is fine.
func (d *Database) ensureCounter(ctx context.Context) error {
	query := `
		INSERT INTO sequence_counter (name, value)
		VALUES ($1, '0')
		`
	_, err := d.pool.Exec(ctx, query, counterName)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			logger.Debugf("Sequence counter %s already present", counterName)
			return nil
		}
		return fmt.Errorf("%w", store.NewStorageError("init counter", counterName, err))
	}
	return nil
}

func (d *Database) Get(ctx context.Context, id string) ([]byte, error) {
	query := `
		SELECT body
		FROM order_record
		WHERE id = $1`

	row := d.pool.QueryRow(ctx, query, id)

	var body []byte

	err := row.Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w", &RecordNotFoundError{ID: id})
		}
		return nil, fmt.Errorf("%w", store.NewStorageError("get", id, err))
	}
	return body, nil
}

// Put upserts the whole record. The body column is JSONB, so a non-JSON
// payload fails here rather than on read.
func (d *Database) Put(ctx context.Context, id string, data []byte) error {
	if !store.ValidID(id) {
		return fmt.Errorf("%w: %q", store.ErrBadID, id)
	}

	query := `
		INSERT INTO order_record (id, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT(id)
		DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`
	_, err := d.pool.Exec(ctx, query, id, data)
	if err != nil {
		return fmt.Errorf("%w", store.NewStorageError("put", id, err))
	}
	return nil
}

// Swap is a compare-and-swap on the JSONB value, so two instances deciding
// the same order cannot both win.
func (d *Database) Swap(ctx context.Context, id string, old, data []byte) (bool, error) {
	query := `
		UPDATE order_record
		SET body = $3, updated_at = now()
		WHERE id = $1 AND body = $2::jsonb
	`
	tag, err := d.pool.Exec(ctx, query, id, old, data)
	if err != nil {
		return false, fmt.Errorf("%w", store.NewStorageError("swap", id, err))
	}
	return tag.RowsAffected() == 1, nil
}

type recordRow struct {
	ID   string `db:"id"`
	Body []byte `db:"body"`
}

func (d *Database) List(ctx context.Context) (map[string][]byte, error) {
	query := `
	    SELECT id, body
		FROM order_record
		ORDER BY id
	`
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w", store.NewStorageError("list", "", err))
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[recordRow])
	if err != nil {
		return nil, fmt.Errorf("%w", store.NewStorageError("list", "", err))
	}

	result := make(map[string][]byte, len(records))
	for _, r := range records {
		result[r.ID] = r.Body
	}
	return result, nil
}

func (d *Database) LoadCounter(ctx context.Context) (string, error) {
	query := `
		SELECT value
		FROM sequence_counter
		WHERE name = $1`

	var value string
	err := d.pool.QueryRow(ctx, query, counterName).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("%w", store.NewStorageError("load counter", counterName, err))
	}
	return value, nil
}

func (d *Database) StoreCounter(ctx context.Context, value string) error {
	query := `
		INSERT INTO sequence_counter (name, value)
		VALUES ($1, $2)
		ON CONFLICT(name)
		DO UPDATE SET value = EXCLUDED.value
	`
	_, err := d.pool.Exec(ctx, query, counterName, value)
	if err != nil {
		return fmt.Errorf("%w", store.NewStorageError("store counter", counterName, err))
	}
	return nil
}

// Next increments the counter in one statement, so instances sharing the
// database never hand out the same number. A non-numeric value restarts at 0.
func (d *Database) Next(ctx context.Context) (int64, error) {
	query := `
		UPDATE sequence_counter
		SET value = ((CASE WHEN value ~ '^[0-9]{1,18}$' THEN value::bigint ELSE 0 END) + 1)::text
		WHERE name = $1
		RETURNING value::bigint
	`
	var next int64
	err := d.pool.QueryRow(ctx, query, counterName).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("%w", store.NewStorageError("next", counterName, err))
	}
	return next, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *Database) Close() {
	d.pool.Close()
}
