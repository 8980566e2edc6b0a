// Package wire defines the JSON frames exchanged over the realtime
// connection as a closed set of Go types.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"sisi-realtime/internal/model"
)

const (
	TypeChatMessage          = "chat_message"
	TypeNewMessage           = "new_message"
	TypeTyping               = "typing"
	TypePaymentRequest       = "payment_request"
	TypeRefreshNotifications = "refresh_notifications"
	TypeNotification         = "notification"
	TypeNotificationsUpdate  = "notifications_update"
)

var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrMissingType = errors.New("frame has no type")
)

// Frame is implemented only by the types in this package.
type Frame interface {
	Type() string
	frame()
}

// ChatMessage is sent by the client to post into a chat.
type ChatMessage struct {
	ChatID      string
	SenderName  string
	Content     string
	MessageType string
}

// NewMessage is pushed by the server for every message stored in a chat the
// user participates in, including the user's own.
type NewMessage struct {
	Message model.Message
}

// Typing travels both ways. UserID is filled in by the server.
type Typing struct {
	ChatID   string
	UserID   string
	IsTyping bool
}

type PaymentRequest struct {
	Payment model.Payment
}

type RefreshNotifications struct{}

type NotificationPush struct {
	Notification model.Notification
}

type NotificationsUpdate struct {
	Notifications []model.Notification
}

// Unknown carries any frame whose type is not listed above.
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (ChatMessage) Type() string          { return TypeChatMessage }
func (NewMessage) Type() string           { return TypeNewMessage }
func (Typing) Type() string               { return TypeTyping }
func (PaymentRequest) Type() string       { return TypePaymentRequest }
func (RefreshNotifications) Type() string { return TypeRefreshNotifications }
func (NotificationPush) Type() string     { return TypeNotification }
func (NotificationsUpdate) Type() string  { return TypeNotificationsUpdate }
func (u Unknown) Type() string            { return u.Kind }

func (ChatMessage) frame()          {}
func (NewMessage) frame()           {}
func (Typing) frame()               {}
func (PaymentRequest) frame()       {}
func (RefreshNotifications) frame() {}
func (NotificationPush) frame()     {}
func (NotificationsUpdate) frame()  {}
func (Unknown) frame()              {}

type envelope struct {
	Type string `json:"type"`
}

type chatMessageWire struct {
	Type        string `json:"type"`
	ChatID      string `json:"chat_id"`
	SenderName  string `json:"sender_name"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

type newMessageWire struct {
	Type    string        `json:"type"`
	Message model.Message `json:"message"`
}

type typingWire struct {
	Type     string `json:"type"`
	ChatID   string `json:"chat_id"`
	IsTyping bool   `json:"is_typing"`
	UserID   string `json:"user_id,omitempty"`
}

type paymentRequestWire struct {
	Type    string        `json:"type"`
	Payment model.Payment `json:"payment"`
}

type notificationWire struct {
	Type         string             `json:"type"`
	Notification model.Notification `json:"notification"`
}

type notificationsUpdateWire struct {
	Type          string               `json:"type"`
	Notifications []model.Notification `json:"notifications"`
}

// Decode parses one frame. Malformed JSON or a missing type is an error; an
// unrecognised type is not.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	switch env.Type {
	case TypeChatMessage:
		var w chatMessageWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ChatMessage{ChatID: w.ChatID, SenderName: w.SenderName, Content: w.Content, MessageType: w.MessageType}, nil
	case TypeNewMessage:
		var w newMessageWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return NewMessage{Message: w.Message}, nil
	case TypeTyping:
		var w typingWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return Typing{ChatID: w.ChatID, UserID: w.UserID, IsTyping: w.IsTyping}, nil
	case TypePaymentRequest:
		var w paymentRequestWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return PaymentRequest{Payment: w.Payment}, nil
	case TypeRefreshNotifications:
		return RefreshNotifications{}, nil
	case TypeNotification:
		var w notificationWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return NotificationPush{Notification: w.Notification}, nil
	case TypeNotificationsUpdate:
		var w notificationsUpdateWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return NotificationsUpdate{Notifications: w.Notifications}, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unknown{Kind: env.Type, Raw: raw}, nil
	}
}

func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case ChatMessage:
		kind := v.MessageType
		if kind == "" {
			kind = "text"
		}
		return json.Marshal(chatMessageWire{Type: TypeChatMessage, ChatID: v.ChatID, SenderName: v.SenderName, Content: v.Content, MessageType: kind})
	case NewMessage:
		return json.Marshal(newMessageWire{Type: TypeNewMessage, Message: v.Message})
	case Typing:
		return json.Marshal(typingWire{Type: TypeTyping, ChatID: v.ChatID, IsTyping: v.IsTyping, UserID: v.UserID})
	case PaymentRequest:
		return json.Marshal(paymentRequestWire{Type: TypePaymentRequest, Payment: v.Payment})
	case RefreshNotifications:
		return json.Marshal(envelope{Type: TypeRefreshNotifications})
	case NotificationPush:
		return json.Marshal(notificationWire{Type: TypeNotification, Notification: v.Notification})
	case NotificationsUpdate:
		list := v.Notifications
		if list == nil {
			list = []model.Notification{}
		}
		return json.Marshal(notificationsUpdateWire{Type: TypeNotificationsUpdate, Notifications: list})
	case Unknown:
		if len(v.Raw) > 0 {
			return v.Raw, nil
		}
		return json.Marshal(envelope{Type: v.Kind})
	default:
		return nil, fmt.Errorf("encode frame: unsupported %T", f)
	}
}
