package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// DefaultPrefix is the etcd key prefix for bulb entries.
const DefaultPrefix = "/yeectl/bulbs"

// EtcdRegistry keeps entries in etcd so several hosts share one address book.
//
//	Key:   {prefix}/{name}
//	Value: JSON-encoded Entry
//
// Entries registered with a TTL are attached to a lease that is kept alive
// until the registry is closed, so an emulator that dies disappears on its own.
type EtcdRegistry struct {
	client *clientv3.Client // safe for concurrent use
	prefix string
	logger *zap.Logger
}

// EtcdOption configures an EtcdRegistry.
type EtcdOption func(*EtcdRegistry)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) EtcdOption {
	return func(r *EtcdRegistry) { r.prefix = strings.TrimRight(prefix, "/") }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EtcdOption {
	return func(r *EtcdRegistry) {
		if l != nil {
			r.logger = l.Named("registry")
		}
	}
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, opts ...EtcdOption) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd: %w", err)
	}
	r := &EtcdRegistry{client: c, prefix: DefaultPrefix, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *EtcdRegistry) key(name string) string {
	return r.prefix + "/" + name
}

// Register stores e. With a positive ttl the entry is bound to a lease and
// renewed in the background.
//
// The lease id stays local so one registry can hold many leased entries.
func (r *EtcdRegistry) Register(ctx context.Context, e Entry, ttl time.Duration) error {
	if err := e.Validate(); err != nil {
		return err
	}
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}

	if ttl <= 0 {
		_, err = r.client.Put(ctx, r.key(e.Name), string(val))
		return err
	}

	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	lease, err := r.client.Grant(ctx, secs)
	if err != nil {
		return err
	}
	if _, err := r.client.Put(ctx, r.key(e.Name), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// Renewal must outlive ctx, which often belongs to a single command.
	ch, err := r.client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keep-alive stopped", zap.String("name", e.Name))
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(ctx context.Context, name string) error {
	resp, err := r.client.Delete(ctx, r.key(name))
	if err != nil {
		return err
	}
	if resp.Deleted == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (r *EtcdRegistry) Lookup(ctx context.Context, name string) (Entry, error) {
	resp, err := r.client.Get(ctx, r.key(name))
	if err != nil {
		return Entry{}, err
	}
	if len(resp.Kvs) == 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	var e Entry
	if err := json.Unmarshal(resp.Kvs[0].Value, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, name, err)
	}
	return e, nil
}

// List returns every entry under the prefix, sorted by name. Malformed values
// are skipped.
func (r *EtcdRegistry) List(ctx context.Context) ([]Entry, error) {
	resp, err := r.client.Get(ctx, r.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var e Entry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			r.logger.Warn("skipping malformed entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Watch emits the full entry list whenever anything under the prefix
// changes, including lease expiry. The channel closes when ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context) <-chan []Entry {
	ch := make(chan []Entry, 1)
	go func() {
		defer close(ch)
		// re-fetch the list instead of applying individual events
		for range r.client.Watch(ctx, r.prefix+"/", clientv3.WithPrefix()) {
			entries, err := r.List(ctx)
			if err != nil {
				r.logger.Warn("watch refresh failed", zap.Error(err))
				continue
			}
			select {
			case ch <- entries:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Close releases the etcd client; leased entries expire after their TTL.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
