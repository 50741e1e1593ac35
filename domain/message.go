// Package domain contains core concepts of the chat system.
// This file defines Message records and their ordering.
// Messages are immutable once appended to a chat.
package domain

import (
	"sort"
	"time"
)

// Message represents an immutable chat message.
type Message struct {
	ID           string // unique identifier, time ordered
	ChatID       string
	AuthorUserID string
	Body         string
	CreatedAt    time.Time
}

// NewerThan reports whether m comes before other in newest-first order.
// Equal timestamps fall back to the identifier so the order is total.
func (m Message) NewerThan(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.After(other.CreatedAt)
	}
	return m.ID > other.ID
}

// SortNewestFirst orders messages in place, newest first.
func SortNewestFirst(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].NewerThan(messages[j])
	})
}
