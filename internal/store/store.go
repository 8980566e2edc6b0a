package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"sisi-realtime/internal/model"
)

var (
	ErrUserExists            = errors.New("User already exists")
	ErrUserNotFound          = errors.New("User not found")
	ErrSelfFriend            = errors.New("Cannot add yourself as friend")
	ErrFriendRequestExists   = errors.New("Friend request already exists")
	ErrFriendRequestNotFound = errors.New("Friend request not found")
	ErrChatNotFound          = errors.New("Chat not found")
	ErrNotParticipant        = errors.New("Access denied")
)

const (
	friendPending  = "pending"
	friendAccepted = "accepted"

	maxSearchResults = 10
	maxNotifications = 50
)

type account struct {
	user         model.User
	passwordHash string
}

type friendship struct {
	from      string
	to        string
	status    string
	createdAt time.Time
}

type notificationRecord struct {
	userID string
	n      model.Notification
}

// Store keeps the development backend's state in memory.
type Store struct {
	mu sync.RWMutex

	accountsByID map[string]*account
	idByUsername map[string]string
	friendships  []*friendship
	chatsByID    map[string]model.ChatSummary
	notes        []notificationRecord
	payments     []model.Payment

	messages *messageStore
}

func New() *Store {
	return &Store{
		accountsByID: make(map[string]*account),
		idByUsername: make(map[string]string),
		chatsByID:    make(map[string]model.ChatSummary),
		messages:     newMessageStore(),
	}
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *Store) CreateUser(username, email, displayName, passwordHash string) (model.User, error) {
	key := usernameKey(username)
	if key == "" || passwordHash == "" {
		return model.User{}, errors.New("username and password are required")
	}
	if displayName == "" {
		displayName = username
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.idByUsername[key]; exists {
		return model.User{}, ErrUserExists
	}
	if email != "" {
		for _, a := range s.accountsByID {
			if strings.EqualFold(a.user.Email, email) {
				return model.User{}, ErrUserExists
			}
		}
	}

	u := model.User{
		ID:          uuid.NewString(),
		Username:    strings.TrimSpace(username),
		DisplayName: displayName,
		Email:       email,
		Status:      "offline",
	}
	s.accountsByID[u.ID] = &account{user: u, passwordHash: passwordHash}
	s.idByUsername[key] = u.ID
	return u, nil
}

// Credentials returns the user and password hash for a login attempt.
func (s *Store) Credentials(username string) (model.User, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idByUsername[usernameKey(username)]
	if !ok {
		return model.User{}, "", false
	}
	a := s.accountsByID[id]
	return a.user, a.passwordHash, true
}

func (s *Store) User(id string) (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accountsByID[id]
	if !ok {
		return model.User{}, false
	}
	return a.user, true
}

func (s *Store) SetStatus(userID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accountsByID[userID]; ok {
		a.user.Status = status
	}
}

// SearchUsers matches username or display name, case-insensitively, and
// never returns the caller.
func (s *Store) SearchUsers(callerID, query string) []model.User {
	q := strings.ToLower(strings.TrimSpace(query))
	if len(q) < 2 {
		return []model.User{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.User, 0)
	for id, a := range s.accountsByID {
		if id == callerID {
			continue
		}
		if strings.Contains(strings.ToLower(a.user.Username), q) || strings.Contains(strings.ToLower(a.user.DisplayName), q) {
			result = append(result, a.user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	if len(result) > maxSearchResults {
		result = result[:maxSearchResults]
	}
	return result
}

func (s *Store) findFriendshipLocked(a, b string) *friendship {
	for _, f := range s.friendships {
		if (f.from == a && f.to == b) || (f.from == b && f.to == a) {
			return f
		}
	}
	return nil
}

// AddFriendRequest records a pending request from fromID to the named user
// and stores the notification the target sees.
func (s *Store) AddFriendRequest(fromID, toUsername string, now time.Time) (model.User, model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.accountsByID[fromID]
	if !ok {
		return model.User{}, model.Notification{}, ErrUserNotFound
	}
	toID, ok := s.idByUsername[usernameKey(toUsername)]
	if !ok {
		return model.User{}, model.Notification{}, ErrUserNotFound
	}
	if toID == fromID {
		return model.User{}, model.Notification{}, ErrSelfFriend
	}
	if s.findFriendshipLocked(fromID, toID) != nil {
		return model.User{}, model.Notification{}, ErrFriendRequestExists
	}

	s.friendships = append(s.friendships, &friendship{from: fromID, to: toID, status: friendPending, createdAt: now})

	n := model.Notification{
		ID:        uuid.NewString(),
		Type:      model.NotificationFriendRequest,
		Title:     "New Friend Request",
		Body:      from.user.DisplayName + " wants to be your friend",
		CreatedAt: model.At(now),
		Payload: map[string]any{
			"from_user_id":      fromID,
			"from_username":     from.user.Username,
			"from_display_name": from.user.DisplayName,
		},
		FriendRequest: &model.FriendRequestPayload{
			FromUserID:      fromID,
			FromUsername:    from.user.Username,
			FromDisplayName: from.user.DisplayName,
		},
	}
	s.notes = append(s.notes, notificationRecord{userID: toID, n: n})
	return s.accountsByID[toID].user, n, nil
}

func (s *Store) AcceptFriendRequest(userID, fromID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.friendships {
		if f.from == fromID && f.to == userID && f.status == friendPending {
			f.status = friendAccepted
			s.dropFriendRequestNotesLocked(userID, fromID)
			return nil
		}
	}
	return ErrFriendRequestNotFound
}

func (s *Store) DeclineFriendRequest(userID, fromID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.friendships {
		if f.from == fromID && f.to == userID && f.status == friendPending {
			s.friendships = append(s.friendships[:i], s.friendships[i+1:]...)
			s.dropFriendRequestNotesLocked(userID, fromID)
			return nil
		}
	}
	return ErrFriendRequestNotFound
}

func (s *Store) dropFriendRequestNotesLocked(userID, fromID string) {
	kept := s.notes[:0]
	for _, r := range s.notes {
		if r.userID == userID && r.n.Type == model.NotificationFriendRequest &&
			r.n.FriendRequest != nil && r.n.FriendRequest.FromUserID == fromID {
			continue
		}
		kept = append(kept, r)
	}
	s.notes = kept
}

func (s *Store) Friends(userID string) []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.User, 0)
	for _, f := range s.friendships {
		if f.status != friendAccepted {
			continue
		}
		other := ""
		switch userID {
		case f.from:
			other = f.to
		case f.to:
			other = f.from
		}
		if a, ok := s.accountsByID[other]; ok {
			result = append(result, a.user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result
}

func (s *Store) CreateChat(createdBy, name string, participants []string, now time.Time) model.ChatSummary {
	if name == "" {
		name = "New Chat"
	}
	members := []string{createdBy}
	for _, p := range participants {
		if p != "" && p != createdBy {
			members = append(members, p)
		}
	}

	c := model.ChatSummary{
		ID:           uuid.NewString(),
		Name:         name,
		LastActivity: model.At(now),
		Participants: members,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatsByID[c.ID] = c
	return c
}

func (s *Store) Chat(chatID string) (model.ChatSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chatsByID[chatID]
	return c, ok
}

// Chats lists the user's chats, most recently active first.
func (s *Store) Chats(userID string) []model.ChatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.ChatSummary, 0)
	for _, c := range s.chatsByID {
		if isParticipant(c, userID) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastActivity.Equal(result[j].LastActivity.Time) {
			return result[i].ID < result[j].ID
		}
		return result[i].LastActivity.After(result[j].LastActivity.Time)
	})
	return result
}

func isParticipant(c model.ChatSummary, userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// AppendMessage stores a message and updates the chat preview. It returns
// the chat so callers can fan out to its participants.
func (s *Store) AppendMessage(senderID, chatID, senderName, content, kind string, now time.Time) (model.Message, model.ChatSummary, error) {
	s.mu.Lock()
	c, ok := s.chatsByID[chatID]
	if !ok {
		s.mu.Unlock()
		return model.Message{}, model.ChatSummary{}, ErrChatNotFound
	}
	if !isParticipant(c, senderID) {
		s.mu.Unlock()
		return model.Message{}, model.ChatSummary{}, ErrNotParticipant
	}
	c.LastMessage = content
	c.LastActivity = model.At(now)
	s.chatsByID[chatID] = c
	s.mu.Unlock()

	if senderName == "" {
		senderName = "Unknown"
	}
	if kind == "" {
		kind = "text"
	}
	msg := model.Message{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		Timestamp:  model.At(now),
		Kind:       kind,
	}
	s.messages.append(chatID, msg)
	return msg, c, nil
}

func (s *Store) Messages(userID, chatID string, limit int) ([]model.Message, error) {
	c, ok := s.Chat(chatID)
	if !ok || !isParticipant(c, userID) {
		return nil, ErrNotParticipant
	}
	return s.messages.first(chatID, limit), nil
}

func (s *Store) AddNotification(userID string, n model.Notification) model.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, notificationRecord{userID: userID, n: n})
	return n
}

// Notifications returns the newest notifications for a user.
func (s *Store) Notifications(userID string) []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Notification, 0)
	for _, r := range s.notes {
		if r.userID == userID {
			result = append(result, r.n)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt.Time)
	})
	if len(result) > maxNotifications {
		result = result[:maxNotifications]
	}
	return result
}

func (s *Store) MarkNotificationRead(userID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notes {
		if s.notes[i].userID == userID && s.notes[i].n.ID == id {
			s.notes[i].n.Read = true
			return true
		}
	}
	return false
}

func (s *Store) CreatePayment(fromID, toID string, amount float64, description string) (model.Payment, error) {
	if _, ok := s.User(toID); !ok {
		return model.Payment{}, ErrUserNotFound
	}
	if description == "" {
		description = "Payment request"
	}
	p := model.Payment{
		ID:          uuid.NewString(),
		FromUser:    fromID,
		ToUser:      toID,
		Amount:      amount,
		Description: description,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, p)
	return p, nil
}

func (s *Store) Payments(userID string) []model.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Payment, 0)
	for _, p := range s.payments {
		if p.FromUser == userID || p.ToUser == userID {
			result = append(result, p)
		}
	}
	return result
}
