package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/creatorships/dashboard/internal/model"
)

// PostgresConversationRepo はPostgreSQLを使用した会話リポジトリ。
type PostgresConversationRepo struct {
	db *sql.DB
}

// NewPostgresConversationRepo はPostgresConversationRepoを生成する。
func NewPostgresConversationRepo(db *sql.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

const conversationSelect = `
	SELECT c.id, c.user_id, c.creator_id, COALESCE(t.name, ''),
		COALESCE((SELECT m.content FROM messages m WHERE m.conversation_id = c.id ORDER BY m.created_at DESC LIMIT 1), ''),
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id AND m.read_at IS NULL AND m.sender_id <> c.user_id),
		c.created_at, c.updated_at
	FROM conversations c
	LEFT JOIN tiktok t ON t.id = c.creator_id`

// ListByUserID は最新メッセージと未読数付きの会話一覧をupdated_at降順で返す。
func (r *PostgresConversationRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		conversationSelect+` WHERE c.user_id = $1 ORDER BY c.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("会話一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		c := &model.Conversation{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.CreatorID, &c.CreatorName, &c.LastMessage, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("会話行の読み取りに失敗しました: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("会話一覧の走査に失敗しました: %w", err)
	}
	return convs, nil
}

// FindByID は利用者が所有する会話を取得する。見つからない場合はnilを返す。
func (r *PostgresConversationRepo) FindByID(ctx context.Context, userID, id string) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := r.db.QueryRowContext(ctx,
		conversationSelect+` WHERE c.id = $1 AND c.user_id = $2`,
		id, userID,
	).Scan(&c.ID, &c.UserID, &c.CreatorID, &c.CreatorName, &c.LastMessage, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗しました: %w", err)
	}
	return c, nil
}

// FindOrCreate は(user_id, creator_id)の会話を返し、存在しなければ作成する。
func (r *PostgresConversationRepo) FindOrCreate(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO conversations (id, user_id, creator_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (user_id, creator_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id`,
		conv.ID, conv.UserID, conv.CreatorID, conv.CreatedAt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("会話の作成に失敗しました: %w", err)
	}
	return r.FindByID(ctx, conv.UserID, id)
}

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// ListByConversation は会話のメッセージをcreated_at昇順で返す。
func (r *PostgresMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, content, read_at, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		m := &model.Message{}
		var readAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &readAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("メッセージ行の読み取りに失敗しました: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メッセージ一覧の走査に失敗しました: %w", err)
	}
	return msgs, nil
}

// Create はメッセージを作成し、会話のupdated_atを同一トランザクションで更新する。
func (r *PostgresMessageRepo) Create(ctx context.Context, msg *model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("メッセージの作成に失敗しました: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE id = $1`,
		msg.ConversationID, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("会話の更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// MarkRead はreaderID以外が送信した未読メッセージを既読にする。
func (r *PostgresMessageRepo) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read_at = $3
		 WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL`,
		conversationID, readerID, at,
	)
	if err != nil {
		return fmt.Errorf("既読化に失敗しました: %w", err)
	}
	return nil
}

// CountUnreadByUserID は利用者の全会話の未読数を返す。
func (r *PostgresMessageRepo) CountUnreadByUserID(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.user_id = $1 AND m.sender_id <> $1 AND m.read_at IS NULL`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("未読数の取得に失敗しました: %w", err)
	}
	return n, nil
}
