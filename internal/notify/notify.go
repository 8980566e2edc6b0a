// Package notify tracks the notification center: unread state and the
// two-phase resolution of friend requests.
package notify

import (
	"errors"
	"sort"

	"sisi-realtime/internal/model"
)

var (
	ErrNotFound         = errors.New("notification not found")
	ErrNotFriendRequest = errors.New("notification is not a friend request")
	ErrInFlight         = errors.New("friend request is already being resolved")
	ErrMissingSender    = errors.New("friend request has no sender id")
)

type Resolution int

const (
	Accept Resolution = iota
	Decline
)

func (r Resolution) String() string {
	if r == Decline {
		return "declined"
	}
	return "accepted"
}

// Pending is what the caller needs to perform the collaborator call for a
// resolution started with BeginResolve.
type Pending struct {
	NotificationID string
	FromUserID     string
	DisplayName    string
}

// State is confined to one goroutine.
type State struct {
	items    []model.Notification
	inflight map[string]struct{}
}

func New() *State {
	return &State{inflight: make(map[string]struct{})}
}

func (s *State) index(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// Ingest adds a pushed notification. A known id is ignored.
func (s *State) Ingest(n model.Notification) bool {
	if n.ID == "" || s.index(n.ID) >= 0 {
		return false
	}
	s.items = append(s.items, n)
	s.sort()
	return true
}

// Replace installs the server's list. Entries with a resolution in flight
// keep their local version.
func (s *State) Replace(list []model.Notification) {
	keep := make(map[string]model.Notification, len(s.inflight))
	for id := range s.inflight {
		if i := s.index(id); i >= 0 {
			keep[id] = s.items[i]
		}
	}

	seen := make(map[string]struct{}, len(list))
	items := make([]model.Notification, 0, len(list)+len(keep))
	for _, n := range list {
		if _, dup := seen[n.ID]; dup || n.ID == "" {
			continue
		}
		seen[n.ID] = struct{}{}
		if local, ok := keep[n.ID]; ok {
			n = local
			delete(keep, n.ID)
		}
		items = append(items, n)
	}
	for _, n := range keep {
		items = append(items, n)
	}
	s.items = items
	s.sort()
}

func (s *State) sort() {
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].CreatedAt.After(s.items[j].CreatedAt.Time)
	})
}

// MarkRead reports whether the notification changed from unread to read.
func (s *State) MarkRead(id string) bool {
	i := s.index(id)
	if i < 0 || s.items[i].Read {
		return false
	}
	s.items[i].Read = true
	return true
}

func (s *State) BeginResolve(id string) (Pending, error) {
	i := s.index(id)
	if i < 0 {
		return Pending{}, ErrNotFound
	}
	n := s.items[i]
	if !n.IsFriendRequest() {
		return Pending{}, ErrNotFriendRequest
	}
	if _, busy := s.inflight[id]; busy {
		return Pending{}, ErrInFlight
	}
	from := senderID(n)
	if from == "" {
		return Pending{}, ErrMissingSender
	}
	s.inflight[id] = struct{}{}
	return Pending{NotificationID: id, FromUserID: from, DisplayName: n.FromDisplayName()}, nil
}

// CompleteResolve removes a friend request after the collaborator accepted
// the resolution.
func (s *State) CompleteResolve(id string) bool {
	if _, ok := s.inflight[id]; !ok {
		return false
	}
	delete(s.inflight, id)
	if i := s.index(id); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	return true
}

// AbortResolve leaves the notification exactly as it was before BeginResolve.
func (s *State) AbortResolve(id string) {
	delete(s.inflight, id)
}

func (s *State) Resolving(id string) bool {
	_, ok := s.inflight[id]
	return ok
}

func (s *State) Get(id string) (model.Notification, bool) {
	if i := s.index(id); i >= 0 {
		return s.items[i], true
	}
	return model.Notification{}, false
}

// Active returns the notifications newest first.
func (s *State) Active() []model.Notification {
	return append([]model.Notification(nil), s.items...)
}

func (s *State) UnreadCount() int {
	n := 0
	for _, it := range s.items {
		if !it.Read {
			n++
		}
	}
	return n
}

func senderID(n model.Notification) string {
	if n.FriendRequest != nil && n.FriendRequest.FromUserID != "" {
		return n.FriendRequest.FromUserID
	}
	for _, key := range []string{"from_user_id", "userId"} {
		if v, ok := n.Payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
