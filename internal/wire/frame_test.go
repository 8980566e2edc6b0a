package wire

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecode_NewMessage(t *testing.T) {
	raw := `{"type":"new_message","message":{"id":"m1","chat_id":"c1","sender_id":"u1","sender_name":"Sam","content":"hi","timestamp":"2024-05-01T10:00:00.5"}}`
	f, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	nm, ok := f.(NewMessage)
	if !ok {
		t.Fatalf("expected NewMessage, got %T", f)
	}
	if nm.Message.ChatID != "c1" || nm.Message.Content != "hi" {
		t.Fatalf("unexpected message %+v", nm.Message)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC)
	if !nm.Message.Timestamp.Equal(want) {
		t.Fatalf("expected %v, got %v", want, nm.Message.Timestamp.Time)
	}
}

func TestDecode_Typing(t *testing.T) {
	f, err := Decode([]byte(`{"type":"typing","chat_id":"c1","is_typing":true,"user_id":"u2"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f != (Typing{ChatID: "c1", UserID: "u2", IsTyping: true}) {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestDecode_PaymentAndNotifications(t *testing.T) {
	f, err := Decode([]byte(`{"type":"payment_request","payment":{"amount":12.5,"description":"dinner"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p, ok := f.(PaymentRequest); !ok || p.Payment.Amount != 12.5 {
		t.Fatalf("unexpected frame %+v", f)
	}

	f, err = Decode([]byte(`{"type":"notifications_update","notifications":[{"id":"n1","type":"friend_request","data":{"userId":"u1"}}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	up, ok := f.(NotificationsUpdate)
	if !ok || len(up.Notifications) != 1 || up.Notifications[0].FriendRequest.FromUserID != "u1" {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestDecode_UnknownIsNotAnError(t *testing.T) {
	f, err := Decode([]byte(`{"type":"user_status","status":"online"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	u, ok := f.(Unknown)
	if !ok || u.Type() != "user_status" {
		t.Fatalf("expected Unknown user_status, got %+v", f)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{"", "{", `{"status":"x"}`, `[1,2]`, `{"type":"new_message","message":"oops"}`} {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestEncode_OutboundShapes(t *testing.T) {
	data, err := Encode(ChatMessage{ChatID: "c1", SenderName: "Sam", Content: "hi"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "chat_message" || got["chat_id"] != "c1" || got["message_type"] != "text" || got["sender_name"] != "Sam" {
		t.Fatalf("unexpected chat_message %s", data)
	}

	data, err = Encode(RefreshNotifications{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != `{"type":"refresh_notifications"}` {
		t.Fatalf("unexpected refresh frame %s", data)
	}

	data, err = Encode(Typing{ChatID: "c1", IsTyping: false})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != `{"type":"typing","chat_id":"c1","is_typing":false}` {
		t.Fatalf("unexpected typing frame %s", data)
	}
}
