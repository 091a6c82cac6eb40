package session

import (
	"sync"

	"locaty/internal/heading"
)

// Broadcaster fans out heading results to any listeners (SSE, UDP, ...).
// It keeps the most recent value so new subscribers get an immediate sample.
type Broadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan heading.Result
	nextID   int
	last     heading.Result
	haveLast bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]chan heading.Result),
	}
}

func (b *Broadcaster) Subscribe(buffer int) (int, <-chan heading.Result) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan heading.Result, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last := b.last
	have := b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) Last() (heading.Result, bool) {
	if b == nil {
		return heading.Result{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.haveLast
}

// Reset forgets the last value so new subscribers wait for a fresh result.
func (b *Broadcaster) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.last = heading.Result{}
	b.haveLast = false
	b.mu.Unlock()
}

// Publish delivers res to every subscriber without blocking; a subscriber
// whose buffer is full misses this value.
func (b *Broadcaster) Publish(res heading.Result) {
	if b == nil {
		return
	}
	// Holding the write lock across the sends keeps Unsubscribe from closing
	// a channel mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- res:
		default:
		}
	}
	b.last = res
	b.haveLast = true
}
