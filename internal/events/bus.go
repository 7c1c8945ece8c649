// Package events is the in-process notification channel the registry
// pushes progress and lifecycle events to. Publishing is fire and
// forget: it never blocks the caller and never fails visibly.
package events

import "sync"

// Kind names an event stream.
type Kind string

const (
	KindAttachmentDeleted Kind = "attachment.deleted"
	KindMediaDownloaded   Kind = "media.downloaded"
	KindProgress          Kind = "attachments.progress"
)

// Progress reports position inside a batch operation. A final event
// with Done set fires when the batch completes, regardless of per-item
// failures.
type Progress struct {
	Op      string
	GroupID string
	Total   int
	Current int
	Done    bool
}

// MediaDownloaded carries a decoded media payload to observers.
type MediaDownloaded struct {
	GroupID string
	Hash    string
	Src     string
}

// AttachmentDeleted announces a record that lost its last reference.
type AttachmentDeleted struct {
	ID   string
	Hash string
}

// Event is one published notification.
type Event struct {
	Kind    Kind
	Payload any
}

// Notifier is the publishing surface the registry depends on.
type Notifier interface {
	Publish(kind Kind, payload any)
}

const subscriberBuffer = 64

// Bus fans events out to subscribers. Slow subscribers drop events
// rather than block the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]subscription
	next int
}

type subscription struct {
	kinds map[Kind]struct{}
	ch    chan Event
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]subscription)}
}

// Subscribe registers interest in the given kinds (all kinds when none
// are given). The returned cancel func unregisters and closes the
// channel.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Event, func()) {
	var filter map[Kind]struct{}
	if len(kinds) > 0 {
		filter = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			filter[k] = struct{}{}
		}
	}

	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscription{kinds: filter, ch: ch}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		sub, ok := b.subs[id]
		if ok {
			delete(b.subs, id)
		}
		b.mu.Unlock()
		if ok {
			close(sub.ch)
		}
	}
	return ch, cancel
}

// Publish delivers the event to matching subscribers without blocking.
func (b *Bus) Publish(kind Kind, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.kinds != nil {
			if _, ok := sub.kinds[kind]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- Event{Kind: kind, Payload: payload}:
		default:
		}
	}
}

var _ Notifier = (*Bus)(nil)
