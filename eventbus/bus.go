package eventbus

import "sync"

// finished is the terminal sentinel delivered to every subscriber exactly
// once, after which the subscriber channel is closed.
type finished struct{}

func (finished) Kind() string { return "__finished__" }

// Finished is the exported sentinel value; subscribers type-assert against
// it (or simply observe channel closure) to detect the end of a task's
// event sequence.
var Finished Event = finished{}

// Bus is a single task's ordered, multi-subscriber event channel. Events
// published to a Bus are delivered to every current subscriber in publish
// order; a slow subscriber only ever blocks further publishes on this Bus,
// never on any other task's Bus (§5 "Shared resources").
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	bufferSize  int
	done        bool
}

// NewBus creates a Bus whose per-subscriber channel has the given buffer
// size (bounded, per §9 "Backpressure").
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Bus{subscribers: make(map[int]chan Event), bufferSize: bufferSize}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed when the bus finishes or when
// unsubscribe is called, whichever happens first.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize)
	if b.done {
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish delivers event to every current subscriber, in publish order.
// Publish blocks on a full subscriber channel; that backpressure is scoped
// to this Bus only. Publish after Finished is a no-op.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	chans := make([]chan Event, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		ch <- event
	}
}

// Finish publishes the terminal sentinel and closes every subscriber
// channel. Finish is idempotent; subsequent calls are no-ops.
func (b *Bus) Finish() {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	b.done = true
	subs := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()

	for _, ch := range subs {
		ch <- Finished
		close(ch)
	}
}

// IsFinished reports whether Finish has already been called.
func (b *Bus) IsFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}
