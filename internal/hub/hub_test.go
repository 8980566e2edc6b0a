package hub

import (
	"errors"
	"testing"
)

type testWriter struct {
	writes int
	closed bool
	fail   bool
}

func (w *testWriter) Write(message []byte) error {
	w.writes++
	if w.fail {
		return errors.New("write failed")
	}
	return nil
}

func (w *testWriter) Close() error {
	w.closed = true
	return nil
}

func TestHub_RegisterSendUnregister(t *testing.T) {
	h := New()
	w1 := &testWriter{}
	w2 := &testWriter{}
	c1 := &Connection{UserID: "u", Writer: w1}
	c2 := &Connection{UserID: "u", Writer: w2}

	if !h.Register(c1) {
		t.Fatalf("expected first connection")
	}
	if h.Register(c2) {
		t.Fatalf("expected second connection not to be first")
	}
	h.SendToUser("u", []byte("x"))
	if w1.writes != 1 || w2.writes != 1 {
		t.Fatalf("expected both connections written, got %d/%d", w1.writes, w2.writes)
	}

	if h.Unregister(c1) {
		t.Fatalf("user still has a connection")
	}
	if !h.Unregister(c2) {
		t.Fatalf("expected last connection")
	}
	if h.Online("u") {
		t.Fatalf("expected user offline")
	}
	h.SendToUser("u", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected no more writes, got %d", w1.writes)
	}
}

func TestHub_RemovesFailedConnections(t *testing.T) {
	h := New()
	w1 := &testWriter{fail: true}
	c1 := &Connection{UserID: "u", Writer: w1}
	h.Register(c1)

	h.SendToUser("u", []byte("x"))
	h.SendToUser("u", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected only 1 write before removal, got %d", w1.writes)
	}
	if !w1.closed {
		t.Fatalf("expected failed writer closed")
	}
}

func TestSendToUsers_DeduplicatesRecipients(t *testing.T) {
	h := New()
	w := &testWriter{}
	h.Register(&Connection{UserID: "u1", Writer: w})
	other := &testWriter{}
	h.Register(&Connection{UserID: "u2", Writer: other})

	SendToUsers(h, []string{"u1", "u2", "u1"}, []byte("x"))
	if w.writes != 1 || other.writes != 1 {
		t.Fatalf("expected one write per user, got %d/%d", w.writes, other.writes)
	}
}
