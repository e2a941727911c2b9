package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/creatorships/dashboard/internal/model"
)

// PostgresCampaignRepo はPostgreSQLを使用したキャンペーンリポジトリ。
type PostgresCampaignRepo struct {
	db *sql.DB
}

// NewPostgresCampaignRepo はPostgresCampaignRepoを生成する。
func NewPostgresCampaignRepo(db *sql.DB) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{db: db}
}

const campaignColumns = `id, user_id, name, objective, campaign_type, budget, start_date, end_date, status,
	creator_ids, deliverables, content_guidelines, additional_notes, target_audience, payment_terms,
	created_at, updated_at`

// Create はキャンペーンを作成する。
func (r *PostgresCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	deliverables, err := json.Marshal(c.Deliverables)
	if err != nil {
		return fmt.Errorf("deliverablesのエンコードに失敗しました: %w", err)
	}
	audience, err := json.Marshal(c.TargetAudience)
	if err != nil {
		return fmt.Errorf("target_audienceのエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO campaigns (`+campaignColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		c.ID, c.UserID, c.Name, c.Objective, c.CampaignType, c.Budget, c.StartDate, c.EndDate, string(c.Status),
		pq.Array(c.CreatorIDs), deliverables, c.ContentGuidelines, c.AdditionalNotes, audience, c.PaymentTerms,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("キャンペーンの作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUserID は利用者のキャンペーンをcreated_at降順で返す。
func (r *PostgresCampaignRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Campaign, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("キャンペーン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var campaigns []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("キャンペーン一覧の走査に失敗しました: %w", err)
	}
	return campaigns, nil
}

// FindByID は利用者が所有するキャンペーンを取得する。見つからない場合はnilを返す。
func (r *PostgresCampaignRepo) FindByID(ctx context.Context, userID, id string) (*model.Campaign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateStatus はステータスを更新する。対象がない場合はfalseを返す。
func (r *PostgresCampaignRepo) UpdateStatus(ctx context.Context, userID, id string, status model.CampaignStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`,
		id, userID, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("キャンペーンステータスの更新に失敗しました: %w", err)
	}
	return affected(result)
}

// Delete はキャンペーンを削除する。対象がない場合はfalseを返す。
func (r *PostgresCampaignRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("キャンペーンの削除に失敗しました: %w", err)
	}
	return affected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(s rowScanner) (*model.Campaign, error) {
	var (
		c            model.Campaign
		status       string
		creatorIDs   pq.StringArray
		deliverables []byte
		audience     []byte
	)
	err := s.Scan(&c.ID, &c.UserID, &c.Name, &c.Objective, &c.CampaignType, &c.Budget, &c.StartDate, &c.EndDate,
		&status, &creatorIDs, &deliverables, &c.ContentGuidelines, &c.AdditionalNotes, &audience, &c.PaymentTerms,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("キャンペーン行の読み取りに失敗しました: %w", err)
	}

	c.Status = model.CampaignStatus(status)
	if !c.Status.Valid() {
		return nil, malformed("campaigns", "unknown status %q", status)
	}
	c.CreatorIDs = []string(creatorIDs)
	if err := json.Unmarshal(deliverables, &c.Deliverables); err != nil {
		return nil, malformed("campaigns", "deliverables: %v", err)
	}
	if err := json.Unmarshal(audience, &c.TargetAudience); err != nil {
		return nil, malformed("campaigns", "target_audience: %v", err)
	}
	return &c, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}
