// Package chatstate reconciles pushed chat events into the client's chat
// list, open conversation and typing indicators. A State is not safe for
// concurrent use; the engine confines it to its event loop.
package chatstate

import (
	"sort"
	"strings"
	"time"

	"sisi-realtime/internal/model"
	"sisi-realtime/internal/wire"
)

const DefaultTypingWindow = 5 * time.Second

type Outcome int

const (
	// Appended means the message joined the open conversation.
	Appended Outcome = iota
	// PreviewOnly means only the chat summary changed.
	PreviewOnly
	Duplicate
	// UnknownChat means the message was dropped; the chat list is stale.
	UnknownChat
)

type State struct {
	self   model.User
	window time.Duration

	chats       []model.ChatSummary
	openChatID  string
	messages    []model.Message
	typing      map[string]time.Time
	draft       string
	suggestions []string
}

func New(self model.User, typingWindow time.Duration) *State {
	if typingWindow <= 0 {
		typingWindow = DefaultTypingWindow
	}
	return &State{self: self, window: typingWindow, typing: make(map[string]time.Time)}
}

func (s *State) Self() model.User { return s.self }

// ReplaceChats installs a full chat list, ordered by last activity.
func (s *State) ReplaceChats(chats []model.ChatSummary) {
	s.chats = append(s.chats[:0:0], chats...)
	sort.SliceStable(s.chats, func(i, j int) bool {
		return s.chats[i].LastActivity.After(s.chats[j].LastActivity.Time)
	})
}

func (s *State) indexOf(chatID string) int {
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			return i
		}
	}
	return -1
}

// OpenChat switches the conversation. Messages, typing entries and
// suggestions of the previous chat are discarded.
func (s *State) OpenChat(chatID string) bool {
	if s.indexOf(chatID) < 0 {
		return false
	}
	if chatID == s.openChatID {
		return true
	}
	s.openChatID = chatID
	s.messages = nil
	s.suggestions = nil
	s.draft = ""
	clear(s.typing)
	return true
}

func (s *State) OpenChatID() string { return s.openChatID }

// ReplaceMessages loads history for the open chat; it is ignored when the
// user has moved on to another chat.
func (s *State) ReplaceMessages(chatID string, msgs []model.Message) bool {
	if chatID != s.openChatID {
		return false
	}
	s.messages = s.messages[:0]
	for _, m := range msgs {
		s.insert(m)
	}
	return true
}

func (s *State) ApplyNewMessage(m model.Message) Outcome {
	i := s.indexOf(m.ChatID)
	if i < 0 {
		return UnknownChat
	}

	outcome := PreviewOnly
	if m.ChatID == s.openChatID {
		if !s.insert(m) {
			return Duplicate
		}
		delete(s.typing, m.SenderID)
		outcome = Appended
	}

	c := s.chats[i]
	c.LastMessage = m.Content
	c.LastActivity = m.Timestamp
	copy(s.chats[1:i+1], s.chats[:i])
	s.chats[0] = c
	return outcome
}

// insert keeps messages ordered by timestamp, arrival order for ties.
func (s *State) insert(m model.Message) bool {
	if m.ID != "" {
		for _, existing := range s.messages {
			if existing.ID == m.ID {
				return false
			}
		}
	}
	at := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].Timestamp.After(m.Timestamp.Time)
	})
	s.messages = append(s.messages, model.Message{})
	copy(s.messages[at+1:], s.messages[at:])
	s.messages[at] = m
	return true
}

// ApplyTyping records or clears a remote user's indicator for the open
// chat. Events for other chats, or from the local user, are ignored.
func (s *State) ApplyTyping(ev wire.Typing, now time.Time) bool {
	if ev.ChatID == "" || ev.ChatID != s.openChatID || ev.UserID == "" || ev.UserID == s.self.ID {
		return false
	}
	if !ev.IsTyping {
		if _, ok := s.typing[ev.UserID]; !ok {
			return false
		}
		delete(s.typing, ev.UserID)
		return true
	}
	s.typing[ev.UserID] = now
	return true
}

// Expire drops indicators silent for longer than the typing window.
func (s *State) Expire(now time.Time) bool {
	changed := false
	for user, at := range s.typing {
		if now.Sub(at) >= s.window {
			delete(s.typing, user)
			changed = true
		}
	}
	return changed
}

func (s *State) TypingUsers() []string {
	out := make([]string, 0, len(s.typing))
	for user := range s.typing {
		out = append(out, user)
	}
	sort.Strings(out)
	return out
}

func (s *State) SetDraft(text string) { s.draft = text }

func (s *State) Draft() string { return s.draft }

// ComposeSend turns the draft into an outbound frame and clears it. Nothing
// is produced for a blank draft or when no chat is open.
func (s *State) ComposeSend() (wire.ChatMessage, bool) {
	content := strings.TrimSpace(s.draft)
	if content == "" || s.openChatID == "" {
		return wire.ChatMessage{}, false
	}
	s.draft = ""
	return wire.ChatMessage{
		ChatID:      s.openChatID,
		SenderName:  s.senderName(),
		Content:     content,
		MessageType: "text",
	}, true
}

func (s *State) senderName() string {
	if s.self.DisplayName != "" {
		return s.self.DisplayName
	}
	return s.self.Username
}

// SetSuggestions applies reply suggestions fetched for chatID; late results
// for a chat that is no longer open are ignored.
func (s *State) SetSuggestions(chatID string, list []string) bool {
	if chatID != s.openChatID {
		return false
	}
	s.suggestions = append([]string(nil), list...)
	return true
}

type Snapshot struct {
	Chats       []model.ChatSummary
	OpenChatID  string
	Messages    []model.Message
	Typing      []string
	Draft       string
	Suggestions []string
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Chats:       append([]model.ChatSummary(nil), s.chats...),
		OpenChatID:  s.openChatID,
		Messages:    append([]model.Message(nil), s.messages...),
		Typing:      s.TypingUsers(),
		Draft:       s.draft,
		Suggestions: append([]string(nil), s.suggestions...),
	}
}
