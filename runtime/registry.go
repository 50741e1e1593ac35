package runtime

import (
	"chat-relay/contract"
	"sync"
)

type Set map[string]struct{}

type Registry struct {
	mu              sync.RWMutex
	sessions        map[string]contract.EventSink // map session -> Sink
	channelMembers  map[string]Set                // map channel to sessions
	sessionChannels map[string]Set                // map session to channels, used on disconnect
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:        make(map[string]contract.EventSink),
		channelMembers:  make(map[string]Set),
		sessionChannels: make(map[string]Set),
	}
}

// Register records the sink of a newly connected session.
func (r *Registry) Register(sessionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = sink
}

// Unregister removes a session and its membership in every channel.
// Channels left without members are dropped so the maps do not grow forever.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
	for channel := range r.sessionChannels[sessionID] {
		r.removeMember(channel, sessionID)
	}
	delete(r.sessionChannels, sessionID)
}

// Join adds a registered session to channel.
// It returns false when the session is unknown.
func (r *Registry) Join(sessionID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	if _, ok := r.channelMembers[channel]; !ok {
		r.channelMembers[channel] = make(Set)
	}
	r.channelMembers[channel][sessionID] = struct{}{}
	if _, ok := r.sessionChannels[sessionID]; !ok {
		r.sessionChannels[sessionID] = make(Set)
	}
	r.sessionChannels[sessionID][channel] = struct{}{}
	return true
}

func (r *Registry) Leave(sessionID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeMember(channel, sessionID)
	if channels, ok := r.sessionChannels[sessionID]; ok {
		delete(channels, channel)
		if len(channels) == 0 {
			delete(r.sessionChannels, sessionID)
		}
	}
}

func (r *Registry) removeMember(channel, sessionID string) {
	if members, ok := r.channelMembers[channel]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.channelMembers, channel)
		}
	}
}

func (r *Registry) Sink(sessionID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sessions[sessionID]
	return sink, ok
}

// GetSinksForChannel resolves the members of channel into their sinks,
// leaving out the except session.
// Returns nil if the channel doesn't exist or has no other member.
func (r *Registry) GetSinksForChannel(channel, except string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.channelMembers[channel]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for sessionID := range members {
		if sessionID == except {
			continue
		}
		if sink, exists := r.sessions[sessionID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

func (r *Registry) GetAllSinks(except string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var activeSinks []contract.EventSink
	for sessionID, sink := range r.sessions {
		if sessionID != except {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
