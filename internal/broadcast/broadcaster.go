// Package broadcast implements the per-job event fan-out of spec.md §4.4:
// any number of subscribers may attach after job creation, each receiving
// only events emitted after their own attachment, with no replay and a
// bounded lossy per-subscriber buffer so a slow consumer never blocks the
// publisher.
package broadcast

import (
	"sync"

	"github.com/fairyhunter13/gradeengine/internal/adapter/observability"
	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// DefaultBufferSize is the per-subscriber channel capacity (spec.md §4.4).
const DefaultBufferSize = 100

// Hub is one job's event broadcaster.
type Hub struct {
	bufferSize int

	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

// New builds a Hub with the default buffer size.
func New() *Hub { return NewWithBufferSize(DefaultBufferSize) }

// NewWithBufferSize builds a Hub with a custom per-subscriber buffer size.
func NewWithBufferSize(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{bufferSize: bufferSize, subs: make(map[*subscription]struct{})}
}

// Publish implements domain.Broadcaster. Never blocks: a subscriber whose
// buffer is full has its oldest pending event dropped to make room, and the
// drop is reported to metrics (not surfaced to the publisher — spec.md §4.4
// treats emission as infallible).
func (h *Hub) Publish(evt domain.GradeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		s.deliver(evt)
	}
}

// Subscribe implements domain.Broadcaster.
func (h *Hub) Subscribe() domain.Subscription {
	s := &subscription{
		ch:  make(chan domain.GradeEvent, h.bufferSize),
		hub: h,
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

type subscription struct {
	ch     chan domain.GradeEvent
	hub    *Hub
	mu     sync.Mutex
	closed bool
}

// deliver sends evt without blocking, dropping the oldest buffered event on
// overflow so the newest event always has room (drop-oldest, spec.md §4.4).
func (s *subscription) deliver(evt domain.GradeEvent) {
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
			select {
			case <-s.ch:
				observability.RecordDroppedEvent()
			default:
			}
		}
	}
}

// Events implements domain.Subscription.
func (s *subscription) Events() <-chan domain.GradeEvent { return s.ch }

// Close implements domain.Subscription.
func (s *subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	s.hub.remove(s)
}
