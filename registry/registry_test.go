package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSplitAddr(t *testing.T) {
	host, port, err := SplitAddr("192.168.1.20", 55443)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", host)
	assert.Equal(t, uint16(55443), port)

	host, port, err = SplitAddr("lamp.local:1234", 55443)
	require.NoError(t, err)
	assert.Equal(t, "lamp.local", host)
	assert.Equal(t, uint16(1234), port)

	_, _, err = SplitAddr("192.168.1.20", 0)
	assert.Error(t, err, "port is mandatory without a default")

	_, _, err = SplitAddr("host:0", 55443)
	assert.Error(t, err)
	_, _, err = SplitAddr("host:99999", 55443)
	assert.Error(t, err)
}

func TestJoinAddrIPv6(t *testing.T) {
	host, port, err := SplitAddr("fe80::1", 55443)
	require.NoError(t, err)
	addr := JoinAddr(host, port)
	assert.Equal(t, "[fe80::1]:55443", addr)

	e := Entry{Name: "desk", Addr: addr}
	require.NoError(t, e.Validate())
	host, port, err = SplitAddr(e.Addr, 0)
	require.NoError(t, err)
	assert.Equal(t, "fe80::1", host)
	assert.Equal(t, uint16(55443), port)

	assert.Equal(t, "lamp.local:1234", JoinAddr("lamp.local", 1234))
}

func TestStaticRegistry(t *testing.T) {
	ctx := context.Background()
	reg, err := NewStaticRegistry(map[string]string{"desk": "10.0.0.5:55443"})
	require.NoError(t, err)

	e, err := reg.Lookup(ctx, "desk")
	require.NoError(t, err)
	assert.Equal(t, Entry{Name: "desk", Addr: "10.0.0.5:55443"}, e)

	require.NoError(t, reg.Register(ctx, Entry{Name: "bed", Addr: "10.0.0.6:55443"}, 0))
	list, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "bed", Addr: "10.0.0.6:55443"}, {Name: "desk", Addr: "10.0.0.5:55443"}}, list)

	require.NoError(t, reg.Deregister(ctx, "desk"))
	_, err = reg.Lookup(ctx, "desk")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, reg.Deregister(ctx, "desk"), ErrNotFound)
}

func TestStaticRegistryRejectsBadEntries(t *testing.T) {
	_, err := NewStaticRegistry(map[string]string{"desk": "no-port"})
	assert.ErrorIs(t, err, ErrInvalidEntry)

	reg, err := NewStaticRegistry(nil)
	require.NoError(t, err)
	assert.ErrorIs(t, reg.Register(context.Background(), Entry{Addr: "1.2.3.4:1"}, 0), ErrInvalidEntry)
}

func TestStaticRegistryTTL(t *testing.T) {
	ctx := context.Background()
	reg, err := NewStaticRegistry(nil)
	require.NoError(t, err)

	now := time.Unix(1000, 0)
	reg.now = func() time.Time { return now }

	require.NoError(t, reg.Register(ctx, Entry{Name: "emu", Addr: "127.0.0.1:55443"}, 10*time.Second))
	_, err = reg.Lookup(ctx, "emu")
	require.NoError(t, err)

	now = now.Add(11 * time.Second)
	_, err = reg.Lookup(ctx, "emu")
	assert.ErrorIs(t, err, ErrNotFound)
	list, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStaticRegistryWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg, err := NewStaticRegistry(nil)
	require.NoError(t, err)

	ch := reg.Watch(ctx)
	require.NoError(t, reg.Register(context.Background(), Entry{Name: "a", Addr: "1.1.1.1:1"}, 0))

	select {
	case list := <-ch:
		assert.Equal(t, []Entry{{Name: "a", Addr: "1.1.1.1:1"}}, list)
	case <-time.After(time.Second):
		t.Fatal("no watch update")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	reg, err := NewStaticRegistry(map[string]string{"desk": "10.0.0.5:4000"})
	require.NoError(t, err)

	host, port, err := Resolve(ctx, reg, "desk", 55443)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", host)
	assert.Equal(t, uint16(4000), port)

	host, port, err = Resolve(ctx, reg, "192.168.0.9", 55443)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.9", host)
	assert.Equal(t, uint16(55443), port)

	host, port, err = Resolve(ctx, nil, "lamp.lan:7", 55443)
	require.NoError(t, err)
	assert.Equal(t, "lamp.lan", host)
	assert.Equal(t, uint16(7), port)

	// unknown names fall back to being hostnames
	host, _, err = Resolve(ctx, reg, "lamp.lan", 55443)
	require.NoError(t, err)
	assert.Equal(t, "lamp.lan", host)
}

func TestEtcdWithNilLogger(t *testing.T) {
	r := &EtcdRegistry{logger: zap.NewNop()}
	WithLogger(nil)(r)
	require.NotNil(t, r.logger)
	assert.NotPanics(t, func() { r.logger.Debug("still usable") })
}
