package jobs

import "sync"

// EventKind discriminates progress events. Consumers switch on the kind
// instead of guessing which fields are populated.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventItemBegin EventKind = "item_begin"
	EventItemEnd   EventKind = "item_end"
	EventFinished  EventKind = "finished"
)

// Event is one progress notification from a running job.
//
// Started:   JobID, Total (0 when not yet known), Label
// ItemBegin: Index (0-based), Total, Label, Source
// ItemEnd:   Index (1-based count done), Total, Label, Source, Dest ("" on failure)
// Finished:  JobID, Label, Summary
type Event struct {
	Kind    EventKind `json:"kind"`
	JobID   string    `json:"job_id"`
	Index   int       `json:"index"`
	Total   int       `json:"total"`
	Label   string    `json:"label"`
	Source  string    `json:"source,omitempty"`
	Dest    string    `json:"dest,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
}

// EventSink receives progress events. Sinks run on the worker goroutine and
// must not block; anything slow belongs behind a channel.
type EventSink func(Event)

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses events, which is acceptable because consumers
// also poll job snapshots.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called to
// release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
