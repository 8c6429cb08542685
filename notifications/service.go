package notifications

import (
	"sync"
	"time"
)

// EventType represents the type of notification event
type EventType string

const (
	EventConnected    EventType = "connected"
	EventTasksChanged EventType = "tasks-changed"
	EventModelChanged EventType = "model-changed"
)

// Event sources for tasks-changed
const (
	SourceAPI      = "api"
	SourceExternal = "external"
)

// Event represents a notification event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Service manages subscriptions and event broadcasting for the live feeds
type Service struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewService creates a new notification service
func NewService() *Service {
	return &Service{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe creates a new subscription channel.
// Returns the event channel and an unsubscribe function.
// After Shutdown the returned channel is already closed.
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 10)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, exists := s.subscribers[ch]; exists {
			delete(s.subscribers, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Notify broadcasts an event to all subscribers; slow subscribers miss events
func (s *Service) Notify(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// NotifyTasksChanged sends a tasks-changed event
func (s *Service) NotifyTasksChanged(source, taskID, operation string) {
	data := map[string]any{"source": source}
	if taskID != "" {
		data["taskId"] = taskID
	}
	if operation != "" {
		data["operation"] = operation
	}
	s.Notify(Event{Type: EventTasksChanged, Data: data})
}

// NotifyModelChanged sends a model-changed event
func (s *Service) NotifyModelChanged(model string) {
	s.Notify(Event{
		Type: EventModelChanged,
		Data: map[string]any{"model": model},
	})
}

// Shutdown closes every subscriber channel; later Notify calls are no-ops
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})
}

// SubscriberCount returns the number of active subscribers
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
