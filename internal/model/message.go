package model

import "time"

// Conversation はブランド利用者とクリエイターの会話スレッドを表す。
type Conversation struct {
	ID          string
	UserID      string
	CreatorID   string
	CreatorName string
	LastMessage string
	UnreadCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message は会話内の1メッセージを表す。
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	ReadAt         *time.Time
	CreatedAt      time.Time
}
