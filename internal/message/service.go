// Package message はブランド利用者とクリエイターのメッセージ機能を提供する。
package message

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/creatorships/dashboard/internal/model"
	"github.com/creatorships/dashboard/internal/repository"
	"github.com/creatorships/dashboard/internal/security"
)

// MaxContentLength はメッセージ本文の最大文字数。
const MaxContentLength = 2000

// Service はメッセージのサービス層。
type Service struct {
	convRepo    repository.ConversationRepository
	msgRepo     repository.MessageRepository
	creatorRepo repository.CreatorRepository
	sanitizer   security.Sanitizer
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	creatorRepo repository.CreatorRepository,
	sanitizer security.Sanitizer,
) *Service {
	return &Service{
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		creatorRepo: creatorRepo,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// ListConversations は利用者の会話一覧を更新日時の新しい順に返す。
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	convs, err := s.convRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("会話一覧の取得に失敗しました: %w", err)
	}
	if convs == nil {
		convs = []*model.Conversation{}
	}
	return convs, nil
}

// StartConversation はクリエイターとの会話を返す。存在しなければ作成する。
func (s *Service) StartConversation(ctx context.Context, userID, creatorID string) (*model.Conversation, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, model.NewValidationError("クリエイターIDは必須です")
	}

	c, err := s.creatorRepo.FindByID(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("クリエイターの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCreatorNotFoundError(creatorID)
	}

	conv, err := s.convRepo.FindOrCreate(ctx, &model.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatorID: creatorID,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("会話の作成に失敗しました: %w", err)
	}
	return conv, nil
}

// ListMessages は会話のメッセージを古い順に返し、相手からの未読メッセージを既読にする。
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string) ([]*model.Message, error) {
	if _, err := s.conversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	msgs, err := s.msgRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗しました: %w", err)
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}

	// 既読化の失敗は一覧の取得を妨げない
	if err := s.msgRepo.MarkRead(ctx, conversationID, userID, s.now()); err != nil {
		slog.Warn("mark read failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
	}
	return msgs, nil
}

// Send はメッセージを送信する。本文はタグを除去し、1文字以上MaxContentLength文字以内とする。
func (s *Service) Send(ctx context.Context, userID, conversationID, content string) (*model.Message, error) {
	content = s.sanitizer.Text(content)
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return nil, model.NewValidationError("メッセージを入力してください")
	}
	if n > MaxContentLength {
		return nil, model.NewValidationError(fmt.Sprintf("メッセージは%d文字以内で入力してください", MaxContentLength))
	}

	if _, err := s.conversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("メッセージの送信に失敗しました: %w", err)
	}
	return msg, nil
}

// UnreadCount は利用者の全会話の未読数を返す。
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.msgRepo.CountUnreadByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("未読数の取得に失敗しました: %w", err)
	}
	return n, nil
}

func (s *Service) conversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.convRepo.FindByID(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗しました: %w", err)
	}
	if conv == nil {
		return nil, model.NewConversationNotFoundError(conversationID)
	}
	return conv, nil
}
