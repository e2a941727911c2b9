package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/creatorships/dashboard/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した購読・クレジットリポジトリ。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

// FindByUserID は利用者の購読行を取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByUserID(ctx context.Context, userID string) (*model.SubscriptionRow, error) {
	row := &model.SubscriptionRow{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, credits_remaining, is_subscribed, updated_at
		 FROM user_subscriptions WHERE user_id = $1`,
		userID,
	).Scan(&row.UserID, &row.CreditsRemaining, &row.IsSubscribed, &row.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("購読状態の取得に失敗しました: %w", err)
	}
	if row.CreditsRemaining < 0 {
		return nil, malformed("user_subscriptions", "negative credits_remaining %d", row.CreditsRemaining)
	}

	return row, nil
}
