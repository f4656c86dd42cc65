package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/confman/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// セッション行は外部の認証基盤が書き込む。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}

	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// expiredSessionBatchSize は1回のDELETEで削除する期限切れセッションの上限。
// 長時間のロックを避けるため、大量の期限切れは複数回に分けて削除する。
const expiredSessionBatchSize = 1000

// DeleteExpired は期限切れのセッションをバッチ単位で削除し、合計の削除件数を返す。
// ctxがキャンセルされた場合はそれまでの削除件数とエラーを返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var total int64
	for {
		result, err := r.db.ExecContext(ctx,
			`DELETE FROM sessions
			 WHERE id IN (
				SELECT id FROM sessions
				WHERE expires_at <= now()
				LIMIT $1
			 )`,
			expiredSessionBatchSize,
		)
		if err != nil {
			return total, fmt.Errorf("期限切れセッションの削除に失敗しました: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
		}
		total += n
		if n < expiredSessionBatchSize {
			return total, nil
		}
	}
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
