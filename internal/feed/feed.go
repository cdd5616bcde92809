// Package feed keeps the most recent pipeline events for the dashboard and
// fans new ones out to live subscribers.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mr1hm/go-relief-pipeline/internal/matcher"
	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
)

const DefaultSize = 60

// subscriberBuffer bounds how far a live subscriber may lag before events are
// skipped for it.
const subscriberBuffer = 64

// History seeding: how many stored incidents are replayed and how their
// resources are matched.
const HistoryLimit = 8

var HistoryQuery = matcher.Query{RadiusKm: 80, Limit: 3}

type Matcher interface {
	FindNearby(origin *models.Coordinates, q matcher.Query) []matcher.Nearby
}

// Subscription is a live view of the feed. Backlog holds the events recorded
// before it started, newest first; Events delivers everything published after,
// with nothing missed or repeated in between.
type Subscription struct {
	ID      uint64
	Backlog []*Event
	Events  <-chan *Event
}

type subscriber struct {
	ch      chan *Event
	skipped int
}

// Feed is a bounded ring of events, newest first, plus its live subscribers.
type Feed struct {
	mu          sync.Mutex
	events      []*Event
	size        int
	subscribers map[uint64]*subscriber
	nextID      uint64
	closed      bool
}

func New(size int) *Feed {
	if size <= 0 {
		size = DefaultSize
	}
	return &Feed{
		events:      make([]*Event, 0, size),
		size:        size,
		subscribers: make(map[uint64]*subscriber),
	}
}

// Publish records ev at the head of the ring, evicting the oldest event when
// full, and hands it to every subscriber with room in its buffer.
func (f *Feed) Publish(ev *Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.events) == f.size {
		f.events = f.events[:f.size-1]
	}
	f.events = slices.Insert(f.events, 0, ev)

	for _, s := range f.subscribers {
		select {
		case s.ch <- ev:
		default:
			s.skipped++
		}
	}
}

// Subscribe registers a live subscriber. After Close it returns the backlog
// with an already closed channel.
func (f *Feed) Subscribe() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	ch := make(chan *Event, subscriberBuffer)
	sub := &Subscription{
		ID:      f.nextID,
		Backlog: slices.Clone(f.events),
		Events:  ch,
	}
	if f.closed {
		close(ch)
		return sub
	}
	f.subscribers[sub.ID] = &subscriber{ch: ch}
	return sub
}

// Unsubscribe closes the subscriber's channel and reports how many events it
// missed for lagging behind.
func (f *Feed) Unsubscribe(id uint64) (skipped int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.subscribers[id]
	if !ok {
		return 0
	}
	close(s.ch)
	delete(f.subscribers, id)
	return s.skipped
}

func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// Close ends every live subscription. Events published afterwards are still
// recorded.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for id, s := range f.subscribers {
		close(s.ch)
		delete(f.subscribers, id)
	}
}

// Snapshot returns the recorded events, newest first.
func (f *Feed) Snapshot() []*Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// Bootstrap seeds the feed from the most recent stored incidents, matching
// resources for each with HistoryQuery. The newest incident ends up first.
func (f *Feed) Bootstrap(ctx context.Context, store repository.IncidentRepository, m Matcher) error {
	incidents, err := store.ListIncidents(ctx, HistoryLimit)
	if err != nil {
		return fmt.Errorf("error loading incident history: %w", err)
	}

	for i := len(incidents) - 1; i >= 0; i-- {
		inc := &incidents[i]
		f.Publish(NewEvent(inc, Details(m.FindNearby(inc.Coordinates(), HistoryQuery)), SourceHistory))
	}
	slog.Info("feed bootstrapped", "events", len(incidents))
	return nil
}
