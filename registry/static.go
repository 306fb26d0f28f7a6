package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// StaticRegistry is an in-memory registry, usually filled from the
// configuration file. TTLs are honoured lazily on read.
type StaticRegistry struct {
	mu       sync.RWMutex
	entries  map[string]staticEntry
	watchers []chan []Entry
	now      func() time.Time
}

type staticEntry struct {
	Entry
	expires time.Time
}

// NewStaticRegistry returns a registry holding bulbs, a name to host:port map.
func NewStaticRegistry(bulbs map[string]string) (*StaticRegistry, error) {
	r := &StaticRegistry{entries: make(map[string]staticEntry, len(bulbs)), now: time.Now}
	for name, addr := range bulbs {
		e := Entry{Name: name, Addr: addr}
		if err := e.Validate(); err != nil {
			return nil, err
		}
		r.entries[name] = staticEntry{Entry: e}
	}
	return r, nil
}

func (r *StaticRegistry) Register(_ context.Context, e Entry, ttl time.Duration) error {
	if err := e.Validate(); err != nil {
		return err
	}
	se := staticEntry{Entry: e}
	if ttl > 0 {
		se.expires = r.now().Add(ttl)
	}
	r.mu.Lock()
	r.entries[e.Name] = se
	r.mu.Unlock()
	r.notify()
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, name string) error {
	r.mu.Lock()
	_, ok := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.notify()
	return nil
}

func (r *StaticRegistry) Lookup(_ context.Context, name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	se, ok := r.entries[name]
	if !ok || r.expired(se) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return se.Entry, nil
}

// List returns live entries sorted by name.
func (r *StaticRegistry) List(_ context.Context) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(), nil
}

// Watch emits the full entry list after every change until ctx ends.
func (r *StaticRegistry) Watch(ctx context.Context) <-chan []Entry {
	ch := make(chan []Entry, 1)
	r.mu.Lock()
	r.watchers = append(r.watchers, ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, w := range r.watchers {
			if w == ch {
				r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (r *StaticRegistry) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.listLocked()
	for _, w := range r.watchers {
		// keep only the newest list for slow watchers
		select {
		case <-w:
		default:
		}
		w <- list
	}
}

func (r *StaticRegistry) listLocked() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, se := range r.entries {
		if !r.expired(se) {
			out = append(out, se.Entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *StaticRegistry) expired(se staticEntry) bool {
	return !se.expires.IsZero() && !r.now().Before(se.expires)
}
