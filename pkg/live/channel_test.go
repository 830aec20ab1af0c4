package live_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesarabad/muffinmanager/internal/fakebroker"
	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/live"
	"github.com/cesarabad/muffinmanager/pkg/session"
)

const waitFor = 3 * time.Second
const tick = 10 * time.Millisecond

func startBroker(t *testing.T) *fakebroker.Broker {
	t.Helper()
	b := fakebroker.New()
	require.NoError(t, b.Start())
	t.Cleanup(func() { _ = b.Stop() })
	return b
}

func newChannel(t *testing.T, b *fakebroker.Broker, mutate ...func(*live.Config)) *live.Channel {
	t.Helper()
	cfg := live.Config{
		URL:           b.URL(),
		CheckInterval: 20 * time.Millisecond,
		Retryer:       live.NewFixedDelayRetryer(20*time.Millisecond, 0),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	ch, err := live.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Dispose(context.Background()) })
	return ch
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) handle(message, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, topic+"|"+message)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestNewRejectsNonWebsocketURL(t *testing.T) {
	_, err := live.New(live.Config{URL: "http://localhost/ws"})
	assert.Error(t, err)
}

func TestSubscribeAndReceive(t *testing.T) {
	b := startBroker(t)
	ch := newChannel(t, b)
	require.NoError(t, ch.Connect(context.Background()))
	assert.Equal(t, live.StateConnected, ch.State())

	rec := &recorder{}
	unsubscribe := ch.Subscribe(rec.handle, "/topic/box", "/topic/global")
	require.Eventually(t, func() bool {
		return b.SubscriberCount("/topic/box") == 1 && b.SubscriberCount("/topic/global") == 1
	}, waitFor, tick)

	b.Publish("/topic/box", `{"id":1}`)
	b.Publish("/topic/global", constants.DeletedSentinel)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, waitFor, tick)
	assert.ElementsMatch(t, []string{`/topic/box|{"id":1}`, "/topic/global|deleted"}, rec.snapshot())

	unsubscribe()
	require.Eventually(t, func() bool { return b.SubscriberCount("/topic/box") == 0 }, waitFor, tick)
	assert.Equal(t, 0, ch.Subscriptions())
}

func TestPerTopicOrder(t *testing.T) {
	b := startBroker(t)
	ch := newChannel(t, b)
	require.NoError(t, ch.Connect(context.Background()))

	rec := &recorder{}
	ch.Subscribe(rec.handle, "/topic/brand")
	require.Eventually(t, func() bool { return b.SubscriberCount("/topic/brand") == 1 }, waitFor, tick)

	want := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		b.Publish("/topic/brand", fmt.Sprint(i))
		want = append(want, fmt.Sprintf("/topic/brand|%d", i))
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 50 }, waitFor, tick)
	assert.Equal(t, want, rec.snapshot())
}

func TestSubscribeBeforeConnect(t *testing.T) {
	b := startBroker(t)
	ch := newChannel(t, b)

	rec := &recorder{}
	ch.Subscribe(rec.handle, "/topic/product")
	require.NoError(t, ch.Connect(context.Background()))

	require.Eventually(t, func() bool { return b.SubscriberCount("/topic/product") == 1 }, waitFor, tick)
	b.Publish("/topic/product", "x")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, waitFor, tick)
}

func TestReconnectRestoresSubscriptions(t *testing.T) {
	b := startBroker(t)
	ch := newChannel(t, b)
	require.NoError(t, ch.Connect(context.Background()))

	rec := &recorder{}
	ch.Subscribe(rec.handle, "/topic/box")
	require.Eventually(t, func() bool { return b.SubscriberCount("/topic/box") == 1 }, waitFor, tick)

	b.DropConnections()

	require.Eventually(t, func() bool {
		return b.Connects() == 2 && b.SubscriberCount("/topic/box") == 1 && ch.State() == live.StateConnected
	}, waitFor, tick)

	b.Publish("/topic/box", "after-reconnect")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"/topic/box|after-reconnect"}, rec.snapshot())
}

func TestConnectFailure(t *testing.T) {
	b := startBroker(t)
	url := b.URL()
	require.NoError(t, b.Stop())

	ch, err := live.New(live.Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Dispose(context.Background()) })

	err = ch.Connect(context.Background())
	var chErr *live.ChannelError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, "connect", chErr.Op)
	assert.Equal(t, live.StateDisconnected, ch.State())
}

func TestCredentialsOnConnect(t *testing.T) {
	b := startBroker(t)
	b.RequireToken("tok")

	store := session.NewStore()
	store.Set(session.Session{Token: "tok"})
	ch := newChannel(t, b, func(c *live.Config) { c.Credentials = store })
	require.NoError(t, ch.Connect(context.Background()))
	assert.Equal(t, []string{"Bearer tok"}, b.AuthHeaders())
}

func TestFailedFirstConnectKeepsRetrying(t *testing.T) {
	b := startBroker(t)
	b.RequireToken("tok")

	store := session.NewStore()
	ch := newChannel(t, b, func(c *live.Config) { c.Credentials = store })

	rec := &recorder{}
	ch.Subscribe(rec.handle, "/topic/box")
	assert.Error(t, ch.Connect(context.Background()), "broker refuses anonymous sessions")

	store.Set(session.Session{Token: "tok"})
	require.Eventually(t, func() bool {
		return ch.State() == live.StateConnected && b.SubscriberCount("/topic/box") == 1
	}, waitFor, tick)
	assert.Equal(t, "", b.AuthHeaders()[0])
	assert.Contains(t, b.AuthHeaders(), "Bearer tok")

	b.Publish("/topic/box", "created")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"/topic/box|created"}, rec.snapshot())
}

func TestDisposeDuringConnectLeavesNoSession(t *testing.T) {
	b := startBroker(t)

	for i := 0; i < 20; i++ {
		ch := newChannel(t, b)
		done := make(chan error, 1)
		go func() { done <- ch.Connect(context.Background()) }()
		require.NoError(t, ch.Dispose(context.Background()))
		<-done
		assert.Equal(t, live.StateClosed, ch.State())
	}
	require.Eventually(t, func() bool { return b.Sessions() == 0 }, waitFor, tick)
}

func TestDisposeIsIdempotent(t *testing.T) {
	b := startBroker(t)
	ch := newChannel(t, b)
	require.NoError(t, ch.Connect(context.Background()))

	rec := &recorder{}
	unsubscribe := ch.Subscribe(rec.handle, "/topic/box")
	require.Eventually(t, func() bool { return b.SubscriberCount("/topic/box") == 1 }, waitFor, tick)

	require.NoError(t, ch.Dispose(context.Background()))
	assert.Equal(t, live.StateClosed, ch.State())
	require.NoError(t, ch.Dispose(context.Background()))

	assert.NotPanics(t, assert.PanicTestFunc(unsubscribe))
	assert.NotPanics(t, assert.PanicTestFunc(unsubscribe))

	assert.ErrorIs(t, ch.Connect(context.Background()), constants.ErrChannelClosed)
	assert.NotPanics(t, func() { ch.Subscribe(rec.handle, "/topic/box")() })
	assert.Equal(t, 0, ch.Subscriptions())
}

func TestDisposeWithoutConnect(t *testing.T) {
	b := startBroker(t)
	ch := newChannel(t, b)
	unsubscribe := ch.Subscribe(func(string, string) {}, "/topic/box")

	require.NoError(t, ch.Dispose(context.Background()))
	unsubscribe()
	assert.Equal(t, live.StateClosed, ch.State())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := startBroker(t)
	ch := newChannel(t, b)
	require.NoError(t, ch.Connect(context.Background()))

	first := &recorder{}
	second := &recorder{}
	unsubscribe := ch.Subscribe(first.handle, "/topic/box")
	ch.Subscribe(second.handle, "/topic/box")
	require.Eventually(t, func() bool { return b.SubscriberCount("/topic/box") == 2 }, waitFor, tick)

	unsubscribe()
	unsubscribe()
	require.Eventually(t, func() bool { return b.SubscriberCount("/topic/box") == 1 }, waitFor, tick)

	b.Publish("/topic/box", "only-second")
	require.Eventually(t, func() bool { return len(second.snapshot()) == 1 }, waitFor, tick)
	assert.Empty(t, first.snapshot())
}
