package attest

import (
	"sync"
	"time"
)

// Stage names a step of an asynchronous verification
type Stage string

const (
	StageQueued    Stage = "queued"
	StageExecuting Stage = "executing"
	StageProving   Stage = "proving"
	StageVerifying Stage = "verifying"
	StageStored    Stage = "stored"
	StageFailed    Stage = "failed"
)

// Event is one progress update, streamed to clients as SSE
type Event struct {
	VerificationID string    `json:"verification_id"`
	Stage          Stage     `json:"stage"`
	Progress       int       `json:"progress"`
	Message        string    `json:"message"`
	Completed      bool      `json:"completed"`
	Success        bool      `json:"success"`
	Attempt        int       `json:"attempt,omitempty"`
	Time           time.Time `json:"time"`
}

const (
	subscriberBuffer = 16
	historyLimit     = 32
)

type topic struct {
	history []Event
	subs    map[chan Event]struct{}
	done    bool
}

// Hub fans progress events out to subscribers. Publishing never blocks: a
// subscriber that falls behind misses events. Late subscribers receive the
// history first.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topic
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]*topic)}
}

func (h *Hub) topicLocked(id string) *topic {
	t, ok := h.topics[id]
	if !ok {
		t = &topic{subs: make(map[chan Event]struct{})}
		h.topics[id] = t
	}
	return t
}

// Publish records ev and delivers it to current subscribers. A completed
// event closes all subscriber channels.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topicLocked(ev.VerificationID)
	if t.done {
		return
	}
	t.history = append(t.history, ev)
	if len(t.history) > historyLimit {
		t.history = t.history[len(t.history)-historyLimit:]
	}

	for ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}

	if ev.Completed {
		t.done = true
		for ch := range t.subs {
			close(ch)
			delete(t.subs, ch)
		}
	}
}

// Subscribe returns a channel of events for id and a cancel func. The
// channel is closed after the completing event or on cancel.
func (h *Hub) Subscribe(id string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topicLocked(id)
	ch := make(chan Event, subscriberBuffer+len(t.history))
	for _, ev := range t.history {
		ch <- ev
	}
	if t.done {
		close(ch)
		return ch, func() {}
	}

	t.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := t.subs[ch]; ok {
				delete(t.subs, ch)
				close(ch)
			}
		})
	}
}

// Forget drops all state for id
func (h *Hub) Forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[id]; ok {
		for ch := range t.subs {
			close(ch)
			delete(t.subs, ch)
		}
		delete(h.topics, id)
	}
}

// Len reports how many verifications have state in the hub
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}
