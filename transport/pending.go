package transport

import (
	"sync"

	"yeectl/message"
)

// Outcome is what a pending call eventually receives: a response, or the
// error that ended the connection.
type Outcome struct {
	Response *message.Response
	Err      error
}

// Tracker matches responses to outstanding requests by correlation id.
// Responses may arrive in any order; matching is never positional.
type Tracker struct {
	mu      sync.Mutex
	waiters map[uint64]chan Outcome
	failed  error // set once by FailAll, after which the tracker is terminal
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{waiters: make(map[uint64]chan Outcome)}
}

// Register adds a waiter for id. The returned channel receives exactly one
// Outcome unless the waiter is cancelled.
func (p *Tracker) Register(id uint64) (<-chan Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failed != nil {
		return nil, p.failed
	}
	if _, ok := p.waiters[id]; ok {
		return nil, ErrDuplicateID
	}
	// Buffered so that resolving never blocks the read loop.
	ch := make(chan Outcome, 1)
	p.waiters[id] = ch
	return ch, nil
}

// Resolve fulfils the waiter for resp's id and removes it. It reports false
// for unknown, late or duplicate ids, which are dropped.
func (p *Tracker) Resolve(id uint64, resp *message.Response) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- Outcome{Response: resp}
	return true
}

// Cancel removes the waiter for id without fulfilling it.
func (p *Tracker) Cancel(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.waiters[id]
	delete(p.waiters, id)
	return ok
}

// FailAll fulfils every outstanding waiter with err and makes the tracker
// terminal. Only the first call has an effect.
func (p *Tracker) FailAll(err error) {
	p.mu.Lock()
	if p.failed != nil {
		p.mu.Unlock()
		return
	}
	p.failed = err
	waiters := p.waiters
	p.waiters = make(map[uint64]chan Outcome)
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- Outcome{Err: err}
	}
}

// Len returns the number of outstanding waiters.
func (p *Tracker) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
