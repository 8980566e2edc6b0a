package chatstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sisi-realtime/internal/model"
	"sisi-realtime/internal/wire"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func at(d time.Duration) model.Timestamp { return model.At(t0.Add(d)) }

func newState() *State {
	s := New(model.User{ID: "me", Username: "sam", DisplayName: "Sam"}, 0)
	s.ReplaceChats([]model.ChatSummary{
		{ID: "c1", Name: "Pat", LastActivity: at(time.Minute)},
		{ID: "c2", Name: "Lee", LastActivity: at(3 * time.Minute)},
		{ID: "c3", Name: "Kim", LastActivity: at(2 * time.Minute)},
	})
	return s
}

func chatIDs(s *State) []string {
	var ids []string
	for _, c := range s.Snapshot().Chats {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestReplaceChatsSortsByActivity(t *testing.T) {
	assert.Equal(t, []string{"c2", "c3", "c1"}, chatIDs(newState()))
}

func TestNewMessageForOpenChatAppendsAndReorders(t *testing.T) {
	s := newState()
	require.True(t, s.OpenChat("c1"))

	out := s.ApplyNewMessage(model.Message{ID: "m1", ChatID: "c1", SenderID: "u2", Content: "hey", Timestamp: at(5 * time.Minute)})
	assert.Equal(t, Appended, out)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hey", snap.Messages[0].Content)
	assert.Equal(t, []string{"c1", "c2", "c3"}, chatIDs(s))
	assert.Equal(t, "hey", snap.Chats[0].LastMessage)
	assert.True(t, snap.Chats[0].LastActivity.Equal(t0.Add(5*time.Minute)))
}

func TestNewMessageForOtherChatOnlyUpdatesPreview(t *testing.T) {
	s := newState()
	require.True(t, s.OpenChat("c1"))

	out := s.ApplyNewMessage(model.Message{ID: "m1", ChatID: "c3", Content: "yo", Timestamp: at(4 * time.Minute)})
	assert.Equal(t, PreviewOnly, out)
	assert.Empty(t, s.Snapshot().Messages)
	assert.Equal(t, []string{"c3", "c2", "c1"}, chatIDs(s))
}

func TestNewMessageOlderThanActivityStillTakesItsTimestamp(t *testing.T) {
	s := newState()

	out := s.ApplyNewMessage(model.Message{ID: "m1", ChatID: "c2", Content: "late", Timestamp: at(30 * time.Second)})
	assert.Equal(t, PreviewOnly, out)

	snap := s.Snapshot()
	assert.Equal(t, []string{"c2", "c3", "c1"}, chatIDs(s))
	assert.Equal(t, "late", snap.Chats[0].LastMessage)
	assert.True(t, snap.Chats[0].LastActivity.Equal(t0.Add(30*time.Second)),
		"activity %v should equal the message timestamp", snap.Chats[0].LastActivity)
}

func TestNewMessageForUnknownChatIsDropped(t *testing.T) {
	s := newState()
	before := s.Snapshot()

	out := s.ApplyNewMessage(model.Message{ID: "m1", ChatID: "nope", Content: "?"})
	assert.Equal(t, UnknownChat, out)
	assert.Equal(t, before, s.Snapshot())
}

func TestMessagesStayInTimestampOrderWithoutDuplicates(t *testing.T) {
	s := newState()
	require.True(t, s.OpenChat("c2"))
	require.True(t, s.ReplaceMessages("c2", []model.Message{
		{ID: "a", ChatID: "c2", Timestamp: at(1 * time.Second)},
		{ID: "c", ChatID: "c2", Timestamp: at(3 * time.Second)},
	}))

	assert.Equal(t, Appended, s.ApplyNewMessage(model.Message{ID: "b", ChatID: "c2", Timestamp: at(2 * time.Second)}))
	assert.Equal(t, Duplicate, s.ApplyNewMessage(model.Message{ID: "c", ChatID: "c2", Timestamp: at(3 * time.Second)}))

	var ids []string
	for _, m := range s.Snapshot().Messages {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestReplaceMessagesIgnoredAfterSwitchingChat(t *testing.T) {
	s := newState()
	require.True(t, s.OpenChat("c1"))
	require.True(t, s.OpenChat("c2"))
	assert.False(t, s.ReplaceMessages("c1", []model.Message{{ID: "x"}}))
	assert.Empty(t, s.Snapshot().Messages)
}

func TestTypingGuardsAndExpiry(t *testing.T) {
	s := newState()
	require.True(t, s.OpenChat("c1"))
	now := t0

	assert.False(t, s.ApplyTyping(wire.Typing{ChatID: "c2", UserID: "u2", IsTyping: true}, now), "other chat")
	assert.False(t, s.ApplyTyping(wire.Typing{ChatID: "c1", UserID: "me", IsTyping: true}, now), "self")
	assert.True(t, s.ApplyTyping(wire.Typing{ChatID: "c1", UserID: "u2", IsTyping: true}, now))
	assert.Equal(t, []string{"u2"}, s.TypingUsers())

	assert.False(t, s.Expire(now.Add(4*time.Second)))
	assert.True(t, s.ApplyTyping(wire.Typing{ChatID: "c1", UserID: "u2", IsTyping: true}, now.Add(4*time.Second)))
	assert.False(t, s.Expire(now.Add(8*time.Second)), "refreshed indicator must survive")
	assert.True(t, s.Expire(now.Add(9*time.Second)))
	assert.Empty(t, s.TypingUsers())
}

func TestTypingStopAndNewMessageClearIndicator(t *testing.T) {
	s := newState()
	require.True(t, s.OpenChat("c1"))

	s.ApplyTyping(wire.Typing{ChatID: "c1", UserID: "u2", IsTyping: true}, t0)
	s.ApplyTyping(wire.Typing{ChatID: "c1", UserID: "u3", IsTyping: true}, t0)
	assert.True(t, s.ApplyTyping(wire.Typing{ChatID: "c1", UserID: "u3", IsTyping: false}, t0))
	assert.Equal(t, []string{"u2"}, s.TypingUsers())

	s.ApplyNewMessage(model.Message{ID: "m1", ChatID: "c1", SenderID: "u2", Timestamp: at(time.Hour)})
	assert.Empty(t, s.TypingUsers())
}

func TestComposeSend(t *testing.T) {
	s := newState()
	s.SetDraft("hello")
	_, ok := s.ComposeSend()
	assert.False(t, ok, "no open chat")

	require.True(t, s.OpenChat("c1"))
	s.SetDraft("   ")
	_, ok = s.ComposeSend()
	assert.False(t, ok, "blank draft")

	s.SetDraft("  hello there ")
	msg, ok := s.ComposeSend()
	require.True(t, ok)
	assert.Equal(t, wire.ChatMessage{ChatID: "c1", SenderName: "Sam", Content: "hello there", MessageType: "text"}, msg)
	assert.Equal(t, "", s.Draft())
}

func TestSuggestionsOnlyForOpenChat(t *testing.T) {
	s := newState()
	require.True(t, s.OpenChat("c1"))
	assert.True(t, s.SetSuggestions("c1", []string{"ok"}))
	assert.False(t, s.SetSuggestions("c2", []string{"late"}))
	assert.Equal(t, []string{"ok"}, s.Snapshot().Suggestions)

	require.True(t, s.OpenChat("c2"))
	assert.Empty(t, s.Snapshot().Suggestions)
}
