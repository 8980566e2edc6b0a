package model

import "encoding/json"

type NotificationType string

const (
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationMessage       NotificationType = "message"
	NotificationPayment       NotificationType = "payment"
)

// Notification is the canonical in-memory shape. Payload keeps the raw data
// object; FriendRequest is the normalized view of it for friend requests.
type Notification struct {
	ID            string                `json:"id"`
	Type          NotificationType      `json:"type"`
	Title         string                `json:"title"`
	Body          string                `json:"message"`
	CreatedAt     Timestamp             `json:"created_at"`
	Read          bool                  `json:"read"`
	Payload       map[string]any        `json:"data,omitempty"`
	FriendRequest *FriendRequestPayload `json:"-"`
}

type FriendRequestPayload struct {
	FromUserID      string
	FromUsername    string
	FromDisplayName string
}

// friendRequestPayloadV2 is what the backend writes today.
type friendRequestPayloadV2 struct {
	FromUserID      string `json:"from_user_id"`
	FromUsername    string `json:"from_username"`
	FromDisplayName string `json:"from_display_name"`
}

// friendRequestPayloadV1 is the older shape that only carried userId.
type friendRequestPayloadV1 struct {
	UserID     string `json:"userId"`
	UserAvatar string `json:"userAvatar"`
}

// NormalizeFriendRequest merges both payload versions into one view.
// from_user_id wins over the legacy userId.
func NormalizeFriendRequest(raw json.RawMessage) (*FriendRequestPayload, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var v2 friendRequestPayloadV2
	_ = json.Unmarshal(raw, &v2)
	var v1 friendRequestPayloadV1
	_ = json.Unmarshal(raw, &v1)

	p := &FriendRequestPayload{
		FromUserID:      v2.FromUserID,
		FromUsername:    v2.FromUsername,
		FromDisplayName: v2.FromDisplayName,
	}
	if p.FromUserID == "" {
		p.FromUserID = v1.UserID
	}
	if p.FromUserID == "" {
		return nil, false
	}
	return p, true
}

type notificationWire struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	CreatedAt *Timestamp       `json:"created_at"`
	Timestamp *Timestamp       `json:"timestamp"`
	Read      bool             `json:"read"`
	Data      json.RawMessage  `json:"data"`
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	var w notificationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := Notification{
		ID:    w.ID,
		Type:  w.Type,
		Title: w.Title,
		Body:  w.Message,
		Read:  w.Read,
	}
	if out.Type == "payment_request" {
		out.Type = NotificationPayment
	}
	switch {
	case w.CreatedAt != nil && !w.CreatedAt.IsZero():
		out.CreatedAt = *w.CreatedAt
	case w.Timestamp != nil:
		out.CreatedAt = *w.Timestamp
	}

	if len(w.Data) > 0 && string(w.Data) != "null" {
		if err := json.Unmarshal(w.Data, &out.Payload); err != nil {
			return err
		}
		if out.Type == NotificationFriendRequest {
			out.FriendRequest, _ = NormalizeFriendRequest(w.Data)
		}
	}

	*n = out
	return nil
}

func (n Notification) IsFriendRequest() bool {
	return n.Type == NotificationFriendRequest
}

// FromDisplayName falls back to a generic label when the payload has none.
func (n Notification) FromDisplayName() string {
	if n.FriendRequest != nil && n.FriendRequest.FromDisplayName != "" {
		return n.FriendRequest.FromDisplayName
	}
	return "Friend"
}
