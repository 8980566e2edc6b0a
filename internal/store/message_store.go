package store

import (
	"sync"

	"sisi-realtime/internal/model"
)

type messageStore struct {
	mu   sync.RWMutex
	data map[string][]model.Message
}

func newMessageStore() *messageStore {
	return &messageStore{data: make(map[string][]model.Message)}
}

func (m *messageStore) append(chatID string, msg model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[chatID] = append(m.data[chatID], msg)
}

// first returns up to limit messages of a chat in the order they were stored.
func (m *messageStore) first(chatID string, limit int) []model.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.data[chatID]
	if limit <= 0 || limit > len(msgs) {
		limit = len(msgs)
	}
	result := make([]model.Message, limit)
	copy(result, msgs[:limit])
	return result
}
