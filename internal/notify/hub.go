// Package notify delivers progression events to subscribers.
package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/udisondev/cultivation/internal/game/cultivation"
)

// Event — одно уведомление прогрессии.
type Event struct {
	Name string
	// CharacterID is zero for broadcasts.
	CharacterID int64
	Payload     any
}

// Sink receives events. A failing sink is skipped, the rest still get the event.
type Sink func(Event) error

// Hub fans events out to sinks.
// Broadcast reaches every sink, NotifyCharacter only sinks watching that
// character plus global sinks.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	global map[uint64]Sink
	byChar map[int64]map[uint64]Sink

	failed atomic.Int64
}

var _ cultivation.Notifier = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		global: make(map[uint64]Sink),
		byChar: make(map[int64]map[uint64]Sink),
	}
}

// Subscribe registers a sink for all events. The returned func unsubscribes.
func (h *Hub) Subscribe(s Sink) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.global[id] = s
	return func() {
		h.mu.Lock()
		delete(h.global, id)
		h.mu.Unlock()
	}
}

// Watch registers a sink for direct notices of one character.
func (h *Hub) Watch(characterID int64, s Sink) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	set, ok := h.byChar[characterID]
	if !ok {
		set = make(map[uint64]Sink)
		h.byChar[characterID] = set
	}
	set[id] = s
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.byChar[characterID], id)
		if len(h.byChar[characterID]) == 0 {
			delete(h.byChar, characterID)
		}
	}
}

// Broadcast sends event to every sink, watchers included.
func (h *Hub) Broadcast(event string, payload any) {
	ev := Event{Name: event, Payload: payload}

	h.mu.RLock()
	sinks := make([]Sink, 0, len(h.global))
	for _, s := range h.global {
		sinks = append(sinks, s)
	}
	for _, set := range h.byChar {
		for _, s := range set {
			sinks = append(sinks, s)
		}
	}
	h.mu.RUnlock()

	h.deliver(ev, sinks)
}

// NotifyCharacter sends event to watchers of characterID and to global sinks.
func (h *Hub) NotifyCharacter(characterID int64, event string, payload any) {
	ev := Event{Name: event, CharacterID: characterID, Payload: payload}

	h.mu.RLock()
	sinks := make([]Sink, 0, len(h.global)+len(h.byChar[characterID]))
	for _, s := range h.global {
		sinks = append(sinks, s)
	}
	for _, s := range h.byChar[characterID] {
		sinks = append(sinks, s)
	}
	h.mu.RUnlock()

	h.deliver(ev, sinks)
}

// Failed returns the number of failed deliveries since creation.
func (h *Hub) Failed() int64 {
	return h.failed.Load()
}

// Sinks are called outside the lock so a sink may unsubscribe itself.
func (h *Hub) deliver(ev Event, sinks []Sink) {
	for _, s := range sinks {
		if err := s(ev); err != nil {
			h.failed.Add(1)
			slog.Warn("failed to deliver event", "event", ev.Name, "characterID", ev.CharacterID, "error", err)
		}
	}
}

// LogSink writes every event to logger at info level.
func LogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev Event) error {
		attrs := []any{"event", ev.Name}
		if ev.CharacterID != 0 {
			attrs = append(attrs, "characterID", ev.CharacterID)
		}
		if ev.Payload != nil {
			attrs = append(attrs, "payload", ev.Payload)
		}
		logger.Info("progression event", attrs...)
		return nil
	}
}
