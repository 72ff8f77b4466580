package router

import (
	"log/slog"
	"sync"
	"time"
)

// Handler receives a decoded message. Handlers run synchronously on the
// goroutine that published the message.
type Handler func(Message)

// Subscription is a single handler registration. It owns its own removal.
type Subscription struct {
	bus     *Bus
	msgType string
	handler Handler
}

// Type returns the message type tag the subscription is registered for.
func (s *Subscription) Type() string {
	return s.msgType
}

// Off removes the registration. It is safe to call more than once, and after
// the bus has been cleared.
func (s *Subscription) Off() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.Off(s)
}

// BusStats contains runtime statistics.
type BusStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	Unrouted         int64
	Handlers         int
}

// Bus is a publish/subscribe registry keyed by message type tag.
//
// Dispatch iterates a snapshot of the handler list taken when the message is
// published, so handlers may register or remove handlers (including
// themselves) without disturbing the pass in progress.
type Bus struct {
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string][]*Subscription

	// Stats
	statsMu     sync.RWMutex
	received    int64
	routed      int64
	parseErrors int64
	unrouted    int64
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		logger:   logger,
		handlers: make(map[string][]*Subscription),
	}
}

// On registers handler for msgType. Registering the same function twice
// yields two subscriptions and two invocations per message.
func (b *Bus) On(msgType string, handler Handler) *Subscription {
	sub := &Subscription{bus: b, msgType: msgType, handler: handler}

	b.mu.Lock()
	b.handlers[msgType] = append(b.handlers[msgType], sub)
	b.mu.Unlock()

	return sub
}

// Off removes sub. Unknown or already removed subscriptions are ignored.
func (b *Bus) Off(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[sub.msgType]
	for i, s := range subs {
		if s != sub {
			continue
		}
		// Copy instead of splicing in place; an in-flight dispatch may still
		// hold the old slice.
		next := make([]*Subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, sub.msgType)
		} else {
			b.handlers[sub.msgType] = next
		}
		return
	}
}

// Clear removes every registration.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.handlers = make(map[string][]*Subscription)
	b.mu.Unlock()
}

// Len returns the number of registrations for msgType.
func (b *Bus) Len(msgType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[msgType])
}

// Publish delivers msg to every handler registered for its type, in
// registration order. It returns the number of handlers invoked.
func (b *Bus) Publish(msg Message) int {
	b.mu.Lock()
	subs := b.handlers[msg.MessageType()]
	b.mu.Unlock()

	// subs is never mutated in place (see Off), so it is a stable snapshot.
	for _, sub := range subs {
		sub.handler(msg)
	}
	return len(subs)
}

// Route decodes a raw frame and publishes it. Malformed frames are logged and
// dropped; frames with no registered handler are ignored.
func (b *Bus) Route(data []byte, receivedAt time.Time) {
	if deliver, ok := b.Prepare(data, receivedAt); ok {
		deliver()
	}
}

// Prepare decodes a raw frame and captures the handlers registered for its
// type at this moment. The returned func delivers the message to exactly
// those handlers. ok is false when the frame was malformed.
//
// Splitting the two steps lets a caller decide, under its own lock, whether
// the frame is still current before any handler runs.
func (b *Bus) Prepare(data []byte, receivedAt time.Time) (deliver func(), ok bool) {
	b.statsMu.Lock()
	b.received++
	b.statsMu.Unlock()

	msg, err := Decode(data, receivedAt)
	if err != nil {
		b.logger.Warn("dropping malformed frame", "error", err, "bytes", len(data))
		b.statsMu.Lock()
		b.parseErrors++
		b.statsMu.Unlock()
		return nil, false
	}

	if msg.MessageType() == TypeAuthSuccess {
		b.logger.Info("feed authenticated")
	}

	b.mu.Lock()
	subs := b.handlers[msg.MessageType()]
	b.mu.Unlock()

	return func() {
		for _, sub := range subs {
			sub.handler(msg)
		}

		b.statsMu.Lock()
		if len(subs) == 0 {
			b.unrouted++
		} else {
			b.routed++
		}
		b.statsMu.Unlock()
	}, true
}

// Stats returns current statistics.
func (b *Bus) Stats() BusStats {
	b.mu.Lock()
	handlers := 0
	for _, subs := range b.handlers {
		handlers += len(subs)
	}
	b.mu.Unlock()

	b.statsMu.RLock()
	defer b.statsMu.RUnlock()

	return BusStats{
		MessagesReceived: b.received,
		MessagesRouted:   b.routed,
		ParseErrors:      b.parseErrors,
		Unrouted:         b.unrouted,
		Handlers:         handlers,
	}
}
