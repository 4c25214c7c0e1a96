package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反を表すSQLSTATE。
const uniqueViolation pq.ErrorCode = "23505"

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

// CreateExclusive は同一メールアドレスの購読者が存在しない場合のみ購読者を作成する。
//
// 1トランザクション内で以下を行う:
//  1. メールアドレスをキーにしたトランザクションスコープのアドバイザリロックを取得する
//     （行が未作成の段階でも、別プロセス・別レプリカからの同一キーの作成を直列化する）
//  2. SELECT ... FOR UPDATE で既存行を確認する
//  3. 行が無ければINSERTしてコミットする
//
// 一意制約違反（23505）はErrDuplicateEmailとして扱う。
func (r *PostgresSubscriberRepo) CreateExclusive(ctx context.Context, sub *model.Subscriber) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		sub.Email,
	); err != nil {
		return fmt.Errorf("failed to acquire subscriber lock: %w", err)
	}

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM subscribers WHERE email = $1 FOR UPDATE`,
		sub.Email,
	).Scan(&existingID)
	switch {
	case err == nil:
		return ErrDuplicateEmail
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to find subscriber by email: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscribers (id, email, source, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, sub.Email, sub.Source, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert subscriber: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// isUniqueViolation はエラーがPostgreSQLの一意制約違反かどうかを判定する。
// エラーメッセージの文字列ではなくSQLSTATEで判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// compile-time interface check
var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
