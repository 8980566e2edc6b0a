package model

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Status      string `json:"status,omitempty"`
}

type ChatSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastMessage  string    `json:"last_message"`
	LastActivity Timestamp `json:"last_activity"`
	Participants []string  `json:"participants,omitempty"`
}

type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  Timestamp `json:"timestamp"`
	Kind       string    `json:"message_type,omitempty"`
}

type Payment struct {
	ID          string  `json:"id,omitempty"`
	FromUser    string  `json:"from_user,omitempty"`
	ToUser      string  `json:"to_user,omitempty"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

type TypingState struct {
	ChatID   string
	UserID   string
	IsTyping bool
	At       Timestamp
}
