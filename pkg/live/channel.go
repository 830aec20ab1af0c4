// Package live keeps the console in sync with changes made by other sessions.
//
// A Channel holds one STOMP session over a websocket. Pages subscribe to
// topics such as /topic/box and re-fetch their data when a message
// arrives. When the session drops the channel reconnects in the
// background and restores every active subscription. Delivery is
// at-most-once: messages published while disconnected are lost.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gofrs/uuid/v5"
	gorilla "github.com/gorilla/websocket"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/logger"
	"github.com/cesarabad/muffinmanager/pkg/session"
)

// Handler receives the payload of a message and the topic it was published on.
type Handler func(message, topic string)

// Unsubscribe cancels a subscription. It is idempotent and safe to call
// after the channel is disposed.
type Unsubscribe func()

// Subscriber is what pages need from a live channel.
type Subscriber interface {
	Subscribe(handler Handler, topics ...string) Unsubscribe
}

var _ Subscriber = (*Channel)(nil)

// DefaultDialer is used when Config.Dialer is nil.
var DefaultDialer = &gorilla.Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: constants.DefaultConnectTimeout,
	Subprotocols:     []string{"v12.stomp"},
}

type Config struct {
	// URL is the websocket endpoint of the broker, e.g. wss://host/ws.
	URL string
	// Credentials, when set, are sent as a bearer token on CONNECT.
	Credentials session.CredentialSource
	Logger      logger.Logger
	Dialer      *gorilla.Dialer
	// Retryer paces reconnection attempts. Defaults to exponential backoff.
	Retryer Retryer
	// CheckInterval is how often the reconnection loop checks the session.
	CheckInterval time.Duration
	// BufferSize bounds each subscription's pending messages.
	BufferSize int
}

// route binds one STOMP subscription id to a topic of a subscription.
type route struct {
	sub   *subscription
	topic string
}

type Channel struct {
	url           string
	credentials   session.CredentialSource
	logger        logger.Logger
	dialer        *gorilla.Dialer
	retryer       Retryer
	checkInterval time.Duration
	bufferSize    int

	state   State
	stateMu sync.Mutex

	// subsMu guards subs and routes. It is taken before connMu.
	subsMu sync.Mutex
	subs   map[string]*subscription
	routes map[string]route

	// connMu guards conn and serializes writes to it.
	connMu sync.Mutex
	conn   *gorilla.Conn

	once     sync.Once
	wakeCh   chan struct{}
	closeCh  chan struct{}
	loopDone chan struct{}
	loopCtx  context.Context
	cancel   context.CancelFunc
}

func New(cfg Config) (*Channel, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("live: invalid url: %w", err)
	}
	if u.Scheme != constants.WebsocketScheme && u.Scheme != constants.WebsocketSecureScheme {
		return nil, fmt.Errorf("live: unsupported scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		url:           cfg.URL,
		credentials:   cfg.Credentials,
		logger:        logger.OrNop(cfg.Logger),
		dialer:        cfg.Dialer,
		retryer:       cfg.Retryer,
		checkInterval: cfg.CheckInterval,
		bufferSize:    cfg.BufferSize,
		state:         StateDisconnected,
		subs:          make(map[string]*subscription),
		routes:        make(map[string]route),
		wakeCh:        make(chan struct{}, 1),
		closeCh:       make(chan struct{}),
		loopDone:      make(chan struct{}),
		loopCtx:       ctx,
		cancel:        cancel,
	}
	if c.dialer == nil {
		c.dialer = DefaultDialer
	}
	if c.retryer == nil {
		c.retryer = NewExponentialBackoffRetryer()
	}
	if c.checkInterval <= 0 {
		c.checkInterval = constants.DefaultReconnectInterval
	}
	if c.bufferSize <= 0 {
		c.bufferSize = constants.DeliveryBufferSize
	}
	return c, nil
}

func (c *Channel) transitionTo(newState State) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if err := c.state.validateTransitionTo(newState); err != nil {
		return err
	}
	c.state = newState
	c.logger.Debug("live channel state transitioned", "new_state", newState)
	return nil
}

func (c *Channel) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Connect opens the session and starts the reconnection loop. A failed
// first attempt is returned to the caller and retried in the background
// like any later disconnection.
func (c *Channel) Connect(ctx context.Context) error {
	err := c.connect(ctx)
	if errors.Is(err, constants.ErrChannelClosed) {
		return err
	}
	c.once.Do(func() {
		c.logger.Debug("live channel is starting reconnection loop")
		go c.reconnectionLoop()
	})
	return err
}

func (c *Channel) connect(ctx context.Context) error {
	if err := c.transitionTo(StateConnecting); err != nil {
		if s := c.State(); s == StateClosing || s == StateClosed {
			return constants.ErrChannelClosed
		}
		return err
	}

	conn, err := c.dial(ctx)
	if err != nil {
		if stateErr := c.transitionTo(StateDisconnected); stateErr != nil {
			c.logger.Debug("live channel closed while connecting", "error", stateErr)
		}
		return &ChannelError{Op: "connect", Err: err}
	}

	if err := c.transitionTo(StateConnected); err != nil {
		// Disposed while connecting.
		_ = conn.Close()
		return constants.ErrChannelClosed
	}

	if !c.attach(conn) {
		return constants.ErrChannelClosed
	}
	go c.readLoop(conn)
	return nil
}

// dial opens the websocket and completes the STOMP handshake.
func (c *Channel) dial(ctx context.Context) (*gorilla.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultConnectTimeout)
	defer cancel()

	conn, res, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}

	u, _ := url.Parse(c.url)
	connect := frame.New(cmdConnect,
		hdrAcceptVersion, stompVersion,
		hdrHost, u.Hostname(),
		hdrHeartBeat, "0,0",
	)
	if c.credentials != nil {
		if token, ok := c.credentials.Credential(); ok {
			connect.Header.Set(hdrAuthorization, "Bearer "+token)
		}
	}
	if err := writeFrame(conn, connect); err != nil {
		conn.Close()
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetReadDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, err
	}
	frames, err := decodeFrames(data)
	if err != nil || len(frames) == 0 {
		conn.Close()
		return nil, fmt.Errorf("%w: malformed handshake reply", constants.ErrUnexpected)
	}
	switch reply := frames[0]; reply.Command {
	case cmdConnected:
		c.logger.Debug("live channel connected", "version", reply.Header.Get(hdrVersion))
	case cmdError:
		conn.Close()
		return nil, fmt.Errorf("broker refused session: %s", reply.Header.Get(hdrMessage))
	default:
		conn.Close()
		return nil, fmt.Errorf("%w: %s", constants.ErrUnexpected, reply.Command)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// attach publishes conn and restores every active subscription on it.
// It closes conn and reports false when the channel is being disposed.
func (c *Channel) attach(conn *gorilla.Conn) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.connMu.Lock()
	if s := c.State(); s == StateClosing || s == StateClosed {
		c.connMu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.connMu.Unlock()

	for id, r := range c.routes {
		if err := c.send(subscribeFrame(id, r.topic)); err != nil {
			c.logger.Warn("live channel failed to resubscribe", "error", &ChannelError{Op: "subscribe", Topic: r.topic, Err: err})
		}
	}
	if len(c.routes) > 0 {
		c.logger.Debug("live channel restored subscriptions", "count", len(c.routes))
	}
	return true
}

// Subscribe registers handler for topics. Subscriptions made before
// Connect or while disconnected become active once the session is up.
func (c *Channel) Subscribe(handler Handler, topics ...string) Unsubscribe {
	topics = dedupe(topics)
	if handler == nil || len(topics) == 0 {
		return func() {}
	}

	if s := c.State(); s == StateClosing || s == StateClosed {
		c.logger.Warn("live channel subscribe after dispose", "topics", topics)
		return func() {}
	}

	sub := newSubscription(uuid.Must(uuid.NewV4()).String(), handler, c.bufferSize)
	ids := make([]string, 0, len(topics))

	c.subsMu.Lock()
	c.subs[sub.id] = sub
	for i, topic := range topics {
		id := fmt.Sprintf("%s-%d", sub.id, i)
		ids = append(ids, id)
		c.routes[id] = route{sub: sub, topic: topic}
		if err := c.send(subscribeFrame(id, topic)); err != nil && !errors.Is(err, constants.ErrNotConnected) {
			c.logger.Warn("live channel failed to subscribe", "error", &ChannelError{Op: "subscribe", Topic: topic, Err: err})
		}
	}
	c.subsMu.Unlock()

	c.logger.Debug("live channel subscribed", "subscription", sub.id, "topics", topics)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, sub.id)
			for _, id := range ids {
				delete(c.routes, id)
				if err := c.send(frame.New(cmdUnsubscribe, hdrID, id)); err != nil && !errors.Is(err, constants.ErrNotConnected) {
					c.logger.Debug("live channel failed to unsubscribe", "error", err)
				}
			}
			c.subsMu.Unlock()
			sub.close()
		})
	}
}

// Subscriptions returns the number of active Subscribe calls.
func (c *Channel) Subscriptions() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

func subscribeFrame(id, topic string) *frame.Frame {
	return frame.New(cmdSubscribe, hdrID, id, hdrDestination, topic, hdrAck, "auto")
}

// send writes f on the current connection.
func (c *Channel) send(f *frame.Frame) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return constants.ErrNotConnected
	}
	return writeFrame(c.conn, f)
}

func writeFrame(conn *gorilla.Conn, f *frame.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(gorilla.TextMessage, data)
}

func (c *Channel) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.detach(conn, err)
			return
		}
		frames, err := decodeFrames(data)
		if err != nil {
			c.logger.Warn("live channel received a malformed frame", "error", &ChannelError{Op: "read", Err: err})
		}
		for _, f := range frames {
			c.dispatch(f)
		}
	}
}

func (c *Channel) dispatch(f *frame.Frame) {
	switch f.Command {
	case cmdMessage:
		id := f.Header.Get(hdrSubscription)
		c.subsMu.Lock()
		r, ok := c.routes[id]
		c.subsMu.Unlock()
		if !ok {
			c.logger.Debug("live channel dropped message for unknown subscription", "subscription", id)
			return
		}
		if !r.sub.enqueue(delivery{topic: r.topic, body: string(f.Body)}) {
			c.logger.Warn("live channel dropped message", "topic", r.topic, "subscription", r.sub.id)
		}
	case cmdError:
		c.logger.Error("live channel broker error", "error", &ChannelError{Op: "broker", Err: errors.New(f.Header.Get(hdrMessage))})
	case cmdReceipt:
	default:
		c.logger.Debug("live channel ignored frame", "command", f.Command)
	}
}

// detach forgets conn after it failed and wakes the reconnection loop.
func (c *Channel) detach(conn *gorilla.Conn, cause error) {
	c.connMu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.connMu.Unlock()
	_ = conn.Close()

	if !current {
		return
	}
	if err := c.transitionTo(StateDisconnected); err != nil {
		// Closing: Dispose owns the teardown.
		return
	}
	c.logger.Warn("live channel disconnected", "error", &ChannelError{Op: "read", Err: cause})

	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

func (c *Channel) reconnectionLoop() {
	defer close(c.loopDone)

	attempt := 0
	delay := c.checkInterval
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.wakeCh:
		case <-time.After(delay):
		}

		if c.State() != StateDisconnected {
			delay = c.checkInterval
			continue
		}

		c.logger.Info("live channel is attempting to reconnect", "attempt", attempt)
		err := c.connect(c.loopCtx)
		if err == nil {
			c.logger.Info("live channel reconnected")
			c.retryer.Reset()
			attempt = 0
			delay = c.checkInterval
			continue
		}
		if errors.Is(err, constants.ErrChannelClosed) {
			return
		}

		c.logger.Warn("live channel failed to reconnect", "error", err, "attempt", attempt)
		next, ok := c.retryer.NextDelay(attempt, err)
		if !ok {
			c.logger.Error("live channel gave up reconnecting", "attempts", attempt+1)
			attempt = 0
			delay = c.checkInterval
			continue
		}
		attempt++
		delay = next
	}
}

// Dispose ends the session and releases every subscription. Further
// calls, and Unsubscribe functions handed out earlier, are no-ops.
func (c *Channel) Dispose(ctx context.Context) error {
	if err := c.transitionTo(StateClosing); err != nil {
		if s := c.State(); s == StateClosing || s == StateClosed {
			return nil
		}
		return err
	}
	defer func() {
		if err := c.transitionTo(StateClosed); err != nil {
			c.logger.Error("BUG: live channel failed to transition to closed state", "error", err)
		}
	}()

	// Stop the reconnection loop first so it cannot revive the session.
	c.cancel()
	close(c.closeCh)
	c.once.Do(func() { close(c.loopDone) })
	select {
	case <-c.loopDone:
	case <-ctx.Done():
		c.logger.Warn("live channel reconnection loop did not stop in time")
	}

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	var err error
	if conn != nil {
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetWriteDeadline(deadline)
		}
		if werr := writeFrame(conn, frame.New(cmdDisconnect)); werr != nil {
			c.logger.Debug("live channel failed to send DISCONNECT", "error", werr)
		}
		_ = conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
		err = conn.Close()
	}

	c.subsMu.Lock()
	for id, sub := range c.subs {
		sub.close()
		delete(c.subs, id)
	}
	clear(c.routes)
	c.subsMu.Unlock()

	return err
}

func dedupe(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
