package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yeectl/message"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	fail map[string]error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, qos, retained, payload.(string)})
	return &fakeToken{err: p.fail[topic]}
}

func (p *fakePublisher) messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func TestForward(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "/yeelight/", "desk", WithQoS(1, true))

	err := m.Forward(message.Notification{
		Method: message.MethodProps,
		Params: map[string]string{"power": "on", "bright": "80"},
	})
	require.NoError(t, err)

	assert.Equal(t, []published{
		{"yeelight/desk/bright", 1, true, "80"},
		{"yeelight/desk/power", 1, true, "on"},
	}, pub.messages())
}

func TestForwardIgnoresOtherMethods(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "yeelight", "desk")

	require.NoError(t, m.Forward(message.Notification{Method: "other", Params: map[string]string{"a": "b"}}))
	assert.Empty(t, pub.messages())
}

func TestForwardCombinesErrors(t *testing.T) {
	pub := &fakePublisher{fail: map[string]error{
		"y/desk/ct":  errors.New("not authorized"),
		"y/desk/rgb": errors.New("not authorized"),
	}}
	m := New(pub, "y", "desk")

	err := m.Forward(message.Notification{
		Method: message.MethodProps,
		Params: map[string]string{"ct": "4000", "rgb": "255", "power": "on"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish y/desk/ct")
	assert.Contains(t, err.Error(), "publish y/desk/rgb")
	assert.Len(t, pub.messages(), 3, "a failure does not stop the other properties")
}

func TestNilLoggerKeepsDefault(t *testing.T) {
	pub := &fakePublisher{fail: map[string]error{"y/desk/power": errors.New("not authorized")}}
	m := New(pub, "y", "desk", WithLogger(nil))

	events := make(chan message.Notification, 1)
	events <- message.Notification{Method: message.MethodProps, Params: map[string]string{"power": "on"}}
	close(events)

	assert.NotPanics(t, func() {
		assert.NoError(t, m.Run(context.Background(), events))
	})
	assert.Len(t, pub.messages(), 1)
}

func TestTopicSanitized(t *testing.T) {
	m := New(&fakePublisher{}, "home", "living/room#1")
	assert.Equal(t, "home/living_room_1/power", m.Topic("power"))
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "yeelight", "desk")

	events := make(chan message.Notification, 2)
	events <- message.Notification{Method: message.MethodProps, Params: map[string]string{"power": "off"}}
	close(events)

	require.NoError(t, m.Run(context.Background(), events))
	assert.Len(t, pub.messages(), 1)
	assert.NoError(t, m.Close())
}

func TestRunStopsWithContext(t *testing.T) {
	m := New(&fakePublisher{}, "yeelight", "desk")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, make(chan message.Notification)) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
