// Package domain contains core concepts of the chat system.
// This file defines Chat entities and their membership invariants.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"time"

	"github.com/samber/lo"
)

// Chat is a conversation between a starter and a fixed set of partners.
// LastMessageID is empty if and only if NumMessages is zero.
type Chat struct {
	ID            string
	StarterUserID string
	Partners      []string
	NumMessages   int
	LastMessageID string
	LastUpdate    time.Time
	CreatedAt     time.Time
}

// NewChat builds an empty chat. Partners are deduplicated and never contain the starter.
func NewChat(id, starterUserID string, partners []string, now time.Time) Chat {
	return Chat{
		ID:            id,
		StarterUserID: starterUserID,
		Partners:      NormalizePartners(starterUserID, partners),
		NumMessages:   0,
		LastUpdate:    now,
		CreatedAt:     now,
	}
}

// NormalizePartners removes duplicates, empty ids and the starter from partners.
func NormalizePartners(starterUserID string, partners []string) []string {
	out := lo.Uniq(lo.Without(partners, starterUserID, ""))
	if out == nil {
		return []string{}
	}
	return out
}

// IsMember reports whether userID is the starter or one of the partners.
func (c Chat) IsMember(userID string) bool {
	if userID == "" {
		return false
	}
	return c.StarterUserID == userID || lo.Contains(c.Partners, userID)
}

// Members returns the starter followed by the partners.
func (c Chat) Members() []string {
	return append([]string{c.StarterUserID}, c.Partners...)
}

func (c Chat) HasMessages() bool {
	return c.NumMessages > 0 && c.LastMessageID != ""
}

// RecordMessage counts a newly appended message and moves the last message
// pointer when the message is newer than the current one.
// Appends applied in any order converge to the same pointer.
func (c *Chat) RecordMessage(messageID string, createdAt time.Time) {
	c.NumMessages++
	if c.LastMessageID == "" || isNewer(createdAt, messageID, c.LastUpdate, c.LastMessageID) {
		c.LastMessageID = messageID
		c.LastUpdate = createdAt
	}
}

func isNewer(at time.Time, id string, currentAt time.Time, currentID string) bool {
	if !at.Equal(currentAt) {
		return at.After(currentAt)
	}
	return id > currentID
}

// Counters are the values a chat caches about its messages.
type Counters struct {
	NumMessages   int
	LastMessageID string
	LastUpdate    time.Time
}

func (c Chat) Counters() Counters {
	return Counters{NumMessages: c.NumMessages, LastMessageID: c.LastMessageID, LastUpdate: c.LastUpdate}
}

func (c Counters) Equal(other Counters) bool {
	return c.NumMessages == other.NumMessages &&
		c.LastMessageID == other.LastMessageID &&
		c.LastUpdate.Equal(other.LastUpdate)
}

// WithCounters returns c holding counters.
func (c Chat) WithCounters(counters Counters) Chat {
	c.NumMessages = counters.NumMessages
	c.LastMessageID = counters.LastMessageID
	c.LastUpdate = counters.LastUpdate
	return c
}
