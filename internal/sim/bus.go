package sim

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscription is one subscriber's mailbox. Events arrive on C; a full
// mailbox drops the oldest pending event rather than blocking publishers.
type Subscription struct {
	ID       string
	ch       chan Event
	channels map[string]bool
	dropped  int
	closed   bool
	mu       sync.Mutex
}

// C returns the subscriber's event channel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events were shed due to backpressure.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) deliver(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- evt:
			return
		default:
		}
		// Mailbox full: shed the oldest pending event and retry.
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

// Bus fans events out to named channels. Channel names are "room:<id>" and
// "agent:<id>"; the wildcards "room:*" and "agent:*" receive every event of
// that kind. Publishing dispatches synchronously to each mailbox.
type Bus struct {
	subs   map[string]*Subscription
	buffer int
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewBus creates a bus whose subscriber mailboxes hold up to buffer events.
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe creates a subscriber listening on the given channels. More
// channels can be added later with Add.
func (b *Bus) Subscribe(channels ...string) *Subscription {
	sub := &Subscription{
		ID:       uuid.New().String(),
		ch:       make(chan Event, b.buffer),
		channels: make(map[string]bool),
	}
	for _, c := range channels {
		sub.channels[c] = true
	}
	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()
	b.logger.Debug("subscriber added", zap.String("id", sub.ID), zap.Strings("channels", channels))
	return sub
}

// Add subscribes an existing subscriber to another channel.
func (b *Bus) Add(sub *Subscription, channel string) {
	sub.mu.Lock()
	sub.channels[channel] = true
	sub.mu.Unlock()
}

// Remove unsubscribes a subscriber from one channel.
func (b *Bus) Remove(sub *Subscription, channel string) {
	sub.mu.Lock()
	delete(sub.channels, channel)
	sub.mu.Unlock()
}

// Unsubscribe closes a subscriber's mailbox and forgets it.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub.ID)
	b.mu.Unlock()

	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	sub.mu.Unlock()
}

// Publish dispatches an event to every subscriber of its channel and of the
// matching wildcard channel.
func (b *Bus) Publish(evt Event) {
	wildcard := ""
	switch {
	case strings.HasPrefix(evt.Channel, "room:"):
		wildcard = RoomWildcard
	case strings.HasPrefix(evt.Channel, "agent:"):
		wildcard = AgentWildcard
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		sub.mu.Lock()
		want := sub.channels[evt.Channel] || (wildcard != "" && sub.channels[wildcard])
		sub.mu.Unlock()
		if want {
			sub.deliver(evt)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
