package broadcast

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"sync"
)

const DefaultBuffer = 64

// Hub fans progress messages out to in-process subscribers. Publish never blocks:
// a subscriber whose buffer is full is dropped and its channel closed.
type Hub struct {
	mu     sync.Mutex
	next   uint64
	subs   map[uint64]chan models.ProgressMessage
	buffer int
	closed bool
	logger *zerolog.Logger
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[uint64]chan models.ProgressMessage),
		buffer: buffer,
		logger: log.Component("hub"),
	}
}

type Subscription struct {
	C    <-chan models.ProgressMessage
	id   uint64
	hub  *Hub
	once sync.Once
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}

func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.ProgressMessage, h.buffer)
	if h.closed {
		close(ch)
		return &Subscription{C: ch, hub: h}
	}
	h.next++
	h.subs[h.next] = ch
	return &Subscription{C: ch, id: h.next, hub: h}
}

func (h *Hub) Publish(_ context.Context, msg models.ProgressMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.logger.Warn().Uint64("subscriber", id).Msg("dropping slow progress subscriber")
			delete(h.subs, id)
			close(ch)
		}
	}
	return nil
}

// Subscribers returns the number of attached subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.closed = true
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}
