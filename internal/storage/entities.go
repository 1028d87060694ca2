package storage

import (
	"time"

	"webchat-backend/internal/chat"
)

// Identity is the externally verified caller identity as handed over by the
// auth layer. Subject is the stable per-provider key users are looked up by.
type Identity struct {
	Subject   string
	Name      string
	Email     string
	AvatarURL *string
}

type User struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID           int64           `json:"id"`
	Conversation int64           `json:"conversationId"`
	Sender       int64           `json:"senderId"`
	Content      string          `json:"content"`
	IsDeleted    bool            `json:"isDeleted"`
	Reactions    []chat.Reaction `json:"reactions"`
	CreatedAt    time.Time       `json:"creationTime"`
}

// UnreadCount is the per-conversation unread projection. OtherUser is set
// for direct conversations only, so 1:1 clients can keep keying by
// counterpart.
type UnreadCount struct {
	Conversation int64  `json:"conversation"`
	OtherUser    *int64 `json:"otherUser,omitempty"`
	Count        int64  `json:"count"`
}
