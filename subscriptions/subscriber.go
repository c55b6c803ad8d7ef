package subscriptions

import (
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
	"github.com/google/uuid"
)

// ChannelPrefix starts the name of every subscriber channel.
const ChannelPrefix = "private-beacon-"

// Subscriber is a client subscribed to a topic with a stored query.
type Subscriber struct {
	// Channel is the unique channel the client listens on.
	Channel string
	// Topic groups the subscribers of one subscription field.
	Topic         string
	Query         string
	OperationName string
	Variables     map[string]any
	// Context is the snapshot of the subscribing request taken by a
	// ContextSerializer.
	Context map[string]any
}

// NewSubscriber returns a subscriber on a fresh channel.
func NewSubscriber(topic, query, operationName string, variables map[string]any) *Subscriber {
	return &Subscriber{
		Channel:       ChannelPrefix + uuid.NewString(),
		Topic:         topic,
		Query:         query,
		OperationName: operationName,
		Variables:     variables,
	}
}

// Topic returns the topic of a subscription field: userCreated becomes
// USER_CREATED.
func Topic(field string) string {
	return strings.ToUpper(inflect.Underscore(field))
}

// Storage keeps subscribers by channel and topic.
type Storage interface {
	Add(sub *Subscriber)
	ByChannel(channel string) (*Subscriber, bool)
	ByTopic(topic string) []*Subscriber
	Delete(channel string) (*Subscriber, bool)
}

// MemoryStorage is a Storage living in process memory.
type MemoryStorage struct {
	mu       sync.RWMutex
	channels map[string]*Subscriber
	topics   map[string]map[string]struct{}
}

// NewMemoryStorage returns an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		channels: make(map[string]*Subscriber),
		topics:   make(map[string]map[string]struct{}),
	}
}

// Add implements Storage.
func (s *MemoryStorage) Add(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[sub.Channel] = sub
	t, ok := s.topics[sub.Topic]
	if !ok {
		t = make(map[string]struct{})
		s.topics[sub.Topic] = t
	}
	t[sub.Channel] = struct{}{}
}

// ByChannel implements Storage.
func (s *MemoryStorage) ByChannel(channel string) (*Subscriber, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.channels[channel]
	return sub, ok
}

// ByTopic implements Storage.
func (s *MemoryStorage) ByTopic(topic string) []*Subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Subscriber, 0, len(s.topics[topic]))
	for ch := range s.topics[topic] {
		out = append(out, s.channels[ch])
	}
	return out
}

// Delete implements Storage.
func (s *MemoryStorage) Delete(channel string) (*Subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.channels[channel]
	if !ok {
		return nil, false
	}
	delete(s.channels, channel)
	if t := s.topics[sub.Topic]; t != nil {
		delete(t, channel)
		if len(t) == 0 {
			delete(s.topics, sub.Topic)
		}
	}
	return sub, true
}
