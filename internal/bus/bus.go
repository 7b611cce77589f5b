// ABOUTME: In-memory event routing table keyed by run identifier
// ABOUTME: Delivers assistant deltas and lifecycle transitions to per-run subscribers

package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	// Large enough to absorb bursts of token deltas without blocking publishers.
	subscriberBufferSize = 256
)

// Stream identifies the kind of event carried on the bus.
type Stream string

const (
	// StreamAssistant carries incremental assistant text for a run.
	StreamAssistant Stream = "assistant"

	// StreamLifecycle carries run phase transitions (start/end/error).
	StreamLifecycle Stream = "lifecycle"
)

// Phase is a lifecycle phase for a run.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
	PhaseError Phase = "error"
)

// AssistantData carries assistant text for one event. Exactly one of Delta
// (incremental fragment) or Text (full snapshot) is populated in practice;
// consumers prefer Delta when both are set.
type AssistantData struct {
	Delta string
	Text  string
}

// LifecycleData carries a run phase transition.
type LifecycleData struct {
	Phase Phase
	Error string
}

// Event is one bus event, scoped to a single run.
type Event struct {
	RunID     string
	Stream    Stream
	Assistant *AssistantData
	Lifecycle *LifecycleData
}

// subscriber owns one delivery channel. Its mutex orders sends against close:
// a publisher that copied this subscriber before an unsubscribe either sends
// first or observes closed, never sends on a closed channel.
type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// send delivers the event without blocking. Returns false when the channel is
// closed or full.
func (s *subscriber) send(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

// close closes the delivery channel once.
func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Bus routes events to subscribers by run ID. The bus is shared by all
// concurrent requests in the process; each subscriber only ever sees events
// for the run it registered for.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscriber // runID -> subID -> subscriber
	logger      *slog.Logger
}

// New creates a bus. Pass nil logger for default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]map[string]*subscriber),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a subscriber for events on the given run ID.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The channel is closed on Unsubscribe or Close.
func (b *Bus) Subscribe(runID string) (<-chan Event, string) {
	subID := uuid.New().String()
	sub := &subscriber{ch: make(chan Event, subscriberBufferSize)}

	b.mu.Lock()
	if _, ok := b.subscribers[runID]; !ok {
		b.subscribers[runID] = make(map[string]*subscriber)
	}
	b.subscribers[runID][subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "run_id", runID, "sub_id", subID)
	return sub.ch, subID
}

// Publish sends an event to all subscribers of event.RunID.
// Non-blocking: events are dropped for subscribers whose channels are full or
// already unsubscribed.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs, ok := b.subscribers[event.RunID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscribers under read lock to avoid holding lock during sends
	targets := make([]*subscriber, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if !sub.send(event) {
			b.logger.Debug("dropped event for closed or slow subscriber",
				"run_id", event.RunID,
				"stream", event.Stream)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call more than once for the same subscription, and safe against
// concurrent Publish calls.
func (b *Bus) Unsubscribe(runID, subID string) {
	b.mu.Lock()
	subs, ok := b.subscribers[runID]
	if !ok {
		b.mu.Unlock()
		return
	}

	sub, exists := subs[subID]
	if !exists {
		b.mu.Unlock()
		return
	}

	delete(subs, subID)

	// Clean up empty run entries so the table does not grow unbounded
	if len(subs) == 0 {
		delete(b.subscribers, runID)
	}
	b.mu.Unlock()

	sub.close()
	b.logger.Debug("subscriber removed", "run_id", runID, "sub_id", subID)
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	var closing []*subscriber
	for runID, subs := range b.subscribers {
		for subID, sub := range subs {
			closing = append(closing, sub)
			delete(subs, subID)
		}
		delete(b.subscribers, runID)
	}
	b.mu.Unlock()

	for _, sub := range closing {
		sub.close()
	}

	b.logger.Debug("bus closed")
}
