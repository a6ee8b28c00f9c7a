package events

import (
	"log/slog"
	"sync"

	"github.com/vsinha/mes/pkg/infrastructure/logging"
)

type subscription struct {
	id      int
	types   map[string]bool // empty matches every type
	handler Handler
}

func (s subscription) matches(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// InMemoryEventStore keeps the journal in process. Handlers are called
// synchronously after the append, outside the store lock, so per-stream order is
// preserved for callers that serialize appends to a stream.
type InMemoryEventStore struct {
	mu      sync.RWMutex
	streams map[string][]Record
	journal []Record
	subs    []subscription
	nextSub int
	logger  *slog.Logger
}

var _ EventStore = (*InMemoryEventStore)(nil)

func NewInMemoryEventStore() *InMemoryEventStore {
	return NewInMemoryEventStoreWithLogger(logging.Discard())
}

// NewInMemoryEventStoreWithLogger creates a store that reports handler failures to logger
func NewInMemoryEventStoreWithLogger(logger *slog.Logger) *InMemoryEventStore {
	return &InMemoryEventStore{
		streams: make(map[string][]Record),
		logger:  logger,
	}
}

// AppendEvent stores the event at the end of streamID, assigning its version
func (s *InMemoryEventStore) AppendEvent(streamID string, event Event) error {
	s.mu.Lock()
	rec := Record{
		EventType: event.Type(),
		Stream:    streamID,
		Payload:   event.Data(),
		At:        event.Timestamp(),
		Seq:       len(s.streams[streamID]) + 1,
	}
	s.streams[streamID] = append(s.streams[streamID], rec)
	s.journal = append(s.journal, rec)

	var handlers []Handler
	for _, sub := range s.subs {
		if sub.matches(rec.EventType) {
			handlers = append(handlers, sub.handler)
		}
	}
	s.mu.Unlock()

	for _, h := range handlers {
		if err := h(rec); err != nil {
			s.logger.Error("event handler failed",
				slog.String("event_type", rec.EventType),
				slog.String("stream", rec.Stream),
				slog.Int("version", rec.Seq),
				slog.Any("error", err))
		}
	}
	return nil
}

// ReadEvents returns the events of a stream starting at fromVersion (1-based)
func (s *InMemoryEventStore) ReadEvents(streamID string, fromVersion int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fromVersion < 1 {
		fromVersion = 1
	}
	return toEvents(s.streams[streamID], fromVersion-1), nil
}

// ReadAllEvents returns the journal starting at the 0-based fromPosition
func (s *InMemoryEventStore) ReadAllEvents(fromPosition int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fromPosition < 0 {
		fromPosition = 0
	}
	return toEvents(s.journal, fromPosition), nil
}

// Subscribe registers handler for the given event types, or for every type when
// none are given. The returned func removes the subscription.
func (s *InMemoryEventStore) Subscribe(handler Handler, eventTypes ...string) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := subscription{id: s.nextSub, types: make(map[string]bool, len(eventTypes)), handler: handler}
	for _, t := range eventTypes {
		sub.types[t] = true
	}
	s.nextSub++
	s.subs = append(s.subs, sub)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, existing := range s.subs {
			if existing.id == sub.id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func toEvents(records []Record, from int) []Event {
	if from >= len(records) {
		return []Event{}
	}
	out := make([]Event, 0, len(records)-from)
	for _, r := range records[from:] {
		out = append(out, r)
	}
	return out
}

// LogHandler writes every event to logger at debug level
func LogHandler(logger *slog.Logger) Handler {
	return func(e Event) error {
		logger.Debug("event",
			slog.String("type", e.Type()),
			slog.String("stream", e.StreamID()),
			slog.Int("version", e.Version()),
			slog.Time("at", e.Timestamp()))
		return nil
	}
}
