// Package events provides typed publish/subscribe topics that connect the
// panel, the map view and the isochrone orchestrator without any of them
// referencing the others.
package events

import (
	"sync"

	"github.com/sells-group/orsmap/internal/model"
)

// Topic is a typed broadcast channel. Handlers run synchronously in
// subscription order on the publishing goroutine.
type Topic[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription[T]
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscription[T]{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers v to every current subscriber. The subscriber list is
// snapshotted first so handlers may subscribe, unsubscribe or publish.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	subs := make([]subscription[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// CenterUpdate reports that the map view's focal point moved.
type CenterUpdate struct {
	Point   model.LatLng
	Source  model.CenterSource
	Visible bool
}

// Level is the severity of a user notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-facing message.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// GenerationStarted is published when an isochrone attempt passes the
// debounce and rate limit.
type GenerationStarted struct {
	Epoch  uint64              `json:"epoch"`
	Detail model.RequestDetail `json:"detail"`
}

// GenerationFinished is published after a successful render.
type GenerationFinished struct {
	Epoch    uint64                 `json:"epoch"`
	Center   model.CenterResolution `json:"center"`
	Features int                    `json:"features"`
}

// GenerationDropped is published when the rate limit rejects an attempt.
// Dropped attempts are not retried.
type GenerationDropped struct {
	SinceLastMs int64               `json:"since_last_ms"`
	Detail      model.RequestDetail `json:"detail"`
}

// AddressCandidates carries autocomplete suggestions for typed text.
type AddressCandidates struct {
	Query  string        `json:"query"`
	Places []model.Place `json:"places"`
}

// Bus groups the topics of a single map session.
type Bus struct {
	// Inbound to the orchestrator.
	ParametersChanged Topic[model.RequestDetail]
	GenerateRequested Topic[model.RequestDetail]
	AddressIntent     Topic[string]
	CenterUpdated     Topic[CenterUpdate]

	// Outbound from the orchestrator.
	GenerationStarted  Topic[GenerationStarted]
	GenerationFinished Topic[GenerationFinished]
	GenerationDropped  Topic[GenerationDropped]
	CenterChanged      Topic[model.LatLng]
	AddressResolved    Topic[string]
	AddressCandidates  Topic[AddressCandidates]
	Notification       Topic[Notification]

	// Mirrors for the session transport.
	PanelState    Topic[model.PanelState]
	MarkerChanged Topic[model.Marker]
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{}
}

// Notify publishes a notification at the given level.
func (b *Bus) Notify(level Level, msg string) {
	b.Notification.Publish(Notification{Level: level, Message: msg})
}
