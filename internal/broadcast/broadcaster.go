// Package broadcast fans each fused record out to live subscribers. Every
// subscriber owns a bounded backlog; a slow consumer loses its oldest
// buffered records (and is told so) instead of slowing anyone else down.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/storage"
)

const (
	// DefaultBacklog is the per-subscriber buffer size.
	DefaultBacklog = 64
	// DefaultRecentSize is how many records the ring buffer keeps for
	// pull-style consumers.
	DefaultRecentSize = 100
)

// Subscriber receives records published after it subscribed, in publish
// order. Its channel is closed on unsubscribe.
type Subscriber struct {
	id string
	ch chan storage.Record

	mu     sync.Mutex
	gap    bool
	closed bool
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string { return s.id }

// C is the stream of records. It is closed when the subscriber is
// unsubscribed.
func (s *Subscriber) C() <-chan storage.Record { return s.ch }

// Gap reports whether records were dropped for this subscriber since the
// last call, and clears the flag.
func (s *Subscriber) Gap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gap
	s.gap = false
	return g
}

// offer enqueues without blocking. On a full backlog it drops the oldest
// buffered record for this subscriber only and flags the gap.
func (s *Subscriber) offer(rec storage.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- rec:
		return true
	default:
	}

	// The buffer looked full, but the consumer may have freed a slot in the
	// meantime. Retry the send before evicting so a freed slot carries the
	// record instead of costing the oldest one. With a buffered channel and
	// offer as the only sender, one of these cases is always ready.
	for {
		select {
		case s.ch <- rec:
			return true
		case <-s.ch:
			s.gap = true
		}
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Broadcaster is the publish/subscribe hub.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[string]*Subscriber
	backlog int

	recent    []storage.Record
	recentCap int

	logger *zap.Logger
}

// New creates a broadcaster. Non-positive sizes fall back to the defaults.
func New(backlog, recentSize int, logger *zap.Logger) *Broadcaster {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if recentSize <= 0 {
		recentSize = DefaultRecentSize
	}
	return &Broadcaster{
		subs:      make(map[string]*Subscriber),
		backlog:   backlog,
		recentCap: recentSize,
		logger:    logger,
	}
}

// Publish delivers rec to every current subscriber and remembers it in the
// recent ring. Never blocks on a slow subscriber.
func (b *Broadcaster) Publish(rec storage.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.recent) == b.recentCap {
		b.recent = append(b.recent[:0], b.recent[1:]...)
	}
	b.recent = append(b.recent, rec)

	for _, sub := range b.subs {
		sub.offer(rec)
	}
}

// Subscribe registers a new subscriber. It only observes records published
// after this call.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{
		id: uuid.New().String(),
		ch: make(chan storage.Record, b.backlog),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug("subscriber registered",
		zap.String("subscriber_id", sub.id),
		zap.Int("subscribers", count))
	return sub
}

// Unsubscribe releases the subscriber's resources and closes its channel.
// Calling it again for the same subscriber is a no-op.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	_, registered := b.subs[sub.id]
	delete(b.subs, sub.id)
	count := len(b.subs)
	b.mu.Unlock()

	sub.close()

	if registered {
		b.logger.Debug("subscriber unregistered",
			zap.String("subscriber_id", sub.id),
			zap.Int("subscribers", count))
	}
}

// Recent returns up to n of the most recently published records, oldest
// first. Serves pull-style consumers that poll instead of streaming.
func (b *Broadcaster) Recent(n int) []storage.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}

	out := make([]storage.Record, n)
	copy(out, b.recent[len(b.recent)-n:])
	return out
}

// SubscriberCount returns the number of registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
