package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresClientStateRepo はPostgreSQLを使用したクライアント状態リポジトリ。
type PostgresClientStateRepo struct {
	db *sql.DB
}

// NewPostgresClientStateRepo はPostgresClientStateRepoを生成する。
func NewPostgresClientStateRepo(db *sql.DB) *PostgresClientStateRepo {
	return &PostgresClientStateRepo{db: db}
}

// GetItems は指定キーの値を1回のクエリで取得する。
func (r *PostgresClientStateRepo) GetItems(ctx context.Context, namespace string, keys ...string) (map[string]string, error) {
	items := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return items, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value FROM client_state
		 WHERE namespace = $1 AND key = ANY($2)`,
		namespace, pq.Array(keys),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get client state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan client state: %w", err)
		}
		items[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate client state: %w", err)
	}

	return items, nil
}

// SetItems は全てのキーを同一トランザクションでUPSERTする。
func (r *PostgresClientStateRepo) SetItems(ctx context.Context, namespace string, items map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO client_state (namespace, key, value, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (namespace, key)
			 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			namespace, key, value,
		); err != nil {
			return fmt.Errorf("failed to set client state %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit client state: %w", err)
	}
	return nil
}

// RemoveItems は指定キーを1つのDELETE文で削除する。
func (r *PostgresClientStateRepo) RemoveItems(ctx context.Context, namespace string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE namespace = $1 AND key = ANY($2)`,
		namespace, pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("failed to remove client state: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ClientStateRepository = (*PostgresClientStateRepo)(nil)
