package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

const mysqlDuplicateEntry = 1062

const entitiesSchema = `
CREATE TABLE IF NOT EXISTS entities (
	kind       VARCHAR(32)  NOT NULL,
	id         VARCHAR(191) NOT NULL,
	version    BIGINT       NOT NULL DEFAULT 0,
	body       BLOB         NOT NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (kind, id)
)`

// EnsureSchema creates the entities table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, entitiesSchema); err != nil {
		return fmt.Errorf("create entities table: %w", err)
	}
	return nil
}

// MySQLStore keeps one row per entity in a shared table keyed by
// (kind, id). CompareAndSwap is an UPDATE guarded by the version column.
type MySQLStore[T domain.Entity[T]] struct {
	db   *sql.DB
	kind string
}

var (
	_ port.InvariantStore[domain.Asset]      = (*MySQLStore[domain.Asset])(nil)
	_ port.InvariantStore[domain.License]    = (*MySQLStore[domain.License])(nil)
	_ port.InvariantStore[domain.AssetGroup] = (*MySQLStore[domain.AssetGroup])(nil)
)

func NewMySQLStore[T domain.Entity[T]](db *sql.DB, kind string) *MySQLStore[T] {
	return &MySQLStore[T]{db: db, kind: kind}
}

func (m *MySQLStore[T]) Read(ctx context.Context, id string) (T, error) {
	var (
		zero    T
		version int64
		body    []byte
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT version, body
		FROM entities WHERE kind = ? AND id = ?`, m.kind, id,
	).Scan(&version, &body)

	if errors.Is(err, sql.ErrNoRows) {
		return zero, domain.NewNotFoundError(m.kind, id)
	}
	if err != nil {
		return zero, fmt.Errorf("query %s: %w", m.kind, err)
	}
	return m.decodeRow(version, body)
}

func (m *MySQLStore[T]) CompareAndSwap(ctx context.Context, expected, next T) (bool, error) {
	body, err := encode(next.WithVersion(expected.EntityVersion() + 1))
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", m.kind, err)
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE entities
		SET body = ?, version = version + 1, updated_at = NOW(6)
		WHERE kind = ? AND id = ? AND version = ?`,
		body, m.kind, expected.EntityID(), expected.EntityVersion(),
	)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", m.kind, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s: %w", m.kind, err)
	}
	if rows == 1 {
		return true, nil
	}

	// Nothing matched: either a newer version exists or the row is gone.
	var exists int
	err = m.db.QueryRowContext(ctx, `
		SELECT 1 FROM entities WHERE kind = ? AND id = ?`, m.kind, expected.EntityID(),
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.NewNotFoundError(m.kind, expected.EntityID())
	}
	if err != nil {
		return false, fmt.Errorf("query %s: %w", m.kind, err)
	}
	return false, nil
}

func (m *MySQLStore[T]) Create(ctx context.Context, value T) error {
	body, err := encode(value.WithVersion(0))
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.kind, err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO entities (kind, id, version, body)
		VALUES (?, ?, 0, ?)`,
		m.kind, value.EntityID(), body,
	)

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%s %s: %w", m.kind, value.EntityID(), domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", m.kind, err)
	}
	return nil
}

func (m *MySQLStore[T]) List(ctx context.Context) ([]T, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT version, body
		FROM entities WHERE kind = ? ORDER BY id`, m.kind,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", m.kind, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		var (
			version int64
			body    []byte
		)
		if err := rows.Scan(&version, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", m.kind, err)
		}
		value, err := m.decodeRow(version, body)
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}
	return result, rows.Err()
}

func (m *MySQLStore[T]) decodeRow(version int64, body []byte) (T, error) {
	var value T
	if err := decode(body, &value); err != nil {
		return value, fmt.Errorf("decode %s: %w", m.kind, err)
	}
	return value.WithVersion(version), nil
}
