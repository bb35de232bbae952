package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresKVStore はPostgreSQLのkv_storeテーブルを使用したKVStore。
type PostgresKVStore struct {
	db *sql.DB
}

// NewPostgresKVStore はPostgresKVStoreを生成する。
func NewPostgresKVStore(db *sql.DB) *PostgresKVStore {
	return &PostgresKVStore{db: db}
}

// Get は指定キーの値を取得する。存在しない場合はfalseを返す。
func (s *PostgresKVStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE key = $1`,
		key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get kv entry: %w", err)
	}

	return json.RawMessage(value), true, nil
}

// Upsert は値をJSONに変換して保存する。既存キーはvalueとupdated_atを更新する。
func (s *PostgresKVStore) Upsert(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal kv value: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, created_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, data,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert kv entry: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (s *PostgresKVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete kv entry: %w", err)
	}
	return nil
}

// ListByPrefix はプレフィックスに一致するエントリを作成日時順に返す。
func (s *PostgresKVStore) ListByPrefix(ctx context.Context, prefix string, limit int) ([]KVEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, created_at, updated_at FROM kv_store
		 WHERE key LIKE $1
		 ORDER BY created_at ASC, key ASC
		 LIMIT $2`,
		likePrefix(prefix), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list kv entries: %w", err)
	}
	defer rows.Close()

	return scanKVEntries(rows)
}

// ListByField はプレフィックスとトップレベルフィールドの値で絞り込んだエントリを返す。
func (s *PostgresKVStore) ListByField(ctx context.Context, prefix, field, value string, limit int) ([]KVEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, created_at, updated_at FROM kv_store
		 WHERE key LIKE $1 AND value->>$2 = $3
		 ORDER BY created_at ASC, key ASC
		 LIMIT $4`,
		likePrefix(prefix), field, value, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list kv entries by field: %w", err)
	}
	defer rows.Close()

	return scanKVEntries(rows)
}

// DeleteByTimeField は時刻フィールドがbeforeより前のエントリを削除する。
func (s *PostgresKVStore) DeleteByTimeField(ctx context.Context, prefix, field string, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_store
		 WHERE key LIKE $1
		   AND value ? $2
		   AND (value->>$2)::timestamptz < $3`,
		likePrefix(prefix), field, before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete kv entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// MergeFields はJSONBの || 演算子でトップレベルフィールドを1文で更新する。
// 読み込みと書き込みを分けないため、同じキーへの並行更新で他方のフィールドを失わない。
func (s *PostgresKVStore) MergeFields(ctx context.Context, key string, fields map[string]any, matchField, matchValue string) (bool, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("failed to marshal kv fields: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE kv_store SET value = value || $2::jsonb, updated_at = now()
		 WHERE key = $1
		   AND ($3::text = '' OR value->>($3::text) = $4::text)`,
		key, data, matchField, matchValue,
	)
	if err != nil {
		return false, fmt.Errorf("failed to merge kv fields: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func scanKVEntries(rows *sql.Rows) ([]KVEntry, error) {
	var entries []KVEntry
	for rows.Next() {
		var e KVEntry
		var value []byte
		if err := rows.Scan(&e.Key, &value, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kv entry: %w", err)
		}
		e.Value = json.RawMessage(value)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kv entries: %w", err)
	}
	return entries, nil
}

// likePrefix はLIKE用にワイルドカード文字をエスケープしたプレフィックスパターンを返す。
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// compile-time interface check
var _ KVStore = (*PostgresKVStore)(nil)
