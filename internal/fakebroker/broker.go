// Package fakebroker provides a fake STOMP-over-websocket broker for tests.
//
// It accepts CONNECT, SUBSCRIBE, UNSUBSCRIBE and DISCONNECT frames and
// fans published messages out to subscribed sessions. DropConnections
// severs every TCP connection to exercise client reconnection.
//
// The websocket server is implemented with the `gws` library.
package fakebroker

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/lxzan/gws"
)

type session struct {
	// subs maps subscription id to destination.
	subs map[string]string
}

type Broker struct {
	listener net.Listener
	server   *gws.Server

	mu       sync.Mutex
	sessions map[*gws.Conn]*session
	// requiredToken, when set, refuses CONNECT frames carrying another bearer token.
	requiredToken string
	authHeaders   []string
	connects      int

	messageID atomic.Int64
}

type handler struct {
	broker *Broker
}

func New() *Broker {
	b := &Broker{sessions: make(map[*gws.Conn]*session)}
	b.server = gws.NewServer(&handler{broker: b}, &gws.ServerOption{})
	b.server.OnError = func(_ net.Conn, err error) {
		if !errors.Is(err, net.ErrClosed) {
			log.Printf("fakebroker: server error: %v", err)
		}
	}
	return b
}

// RequireToken makes the broker answer ERROR to sessions without this bearer token.
func (b *Broker) RequireToken(token string) *Broker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requiredToken = token
	return b
}

// Start listens on a random local port.
func (b *Broker) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	b.listener = listener

	go func() {
		if err := b.server.RunListener(listener); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("fakebroker: %v", err)
		}
	}()
	return nil
}

// URL is the websocket endpoint clients dial.
func (b *Broker) URL() string {
	return "ws://" + b.listener.Addr().String() + "/ws"
}

func (b *Broker) Stop() error {
	b.DropConnections()
	if b.listener != nil {
		return b.listener.Close()
	}
	return nil
}

// Publish sends body to every session subscribed to destination and
// returns how many subscriptions received it.
func (b *Broker) Publish(destination, body string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	sent := 0
	for socket, s := range b.sessions {
		for id, dest := range s.subs {
			if dest != destination {
				continue
			}
			msg := frame.New("MESSAGE",
				"destination", destination,
				"subscription", id,
				"message-id", strconv.FormatInt(b.messageID.Add(1), 10),
				"content-type", "text/plain",
			)
			msg.Body = []byte(body)
			if err := write(socket, msg); err == nil {
				sent++
			}
		}
	}
	return sent
}

// SubscriberCount returns the number of subscriptions to destination.
func (b *Broker) SubscriberCount(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.sessions {
		for _, dest := range s.subs {
			if dest == destination {
				n++
			}
		}
	}
	return n
}

// Connects returns how many sessions completed the STOMP handshake.
func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Sessions returns how many STOMP sessions are currently open.
func (b *Broker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// AuthHeaders returns the Authorization header of every CONNECT frame.
func (b *Broker) AuthHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders...)
}

// DropConnections closes every client connection without a close handshake.
func (b *Broker) DropConnections() {
	b.mu.Lock()
	sockets := make([]*gws.Conn, 0, len(b.sessions))
	for socket := range b.sessions {
		sockets = append(sockets, socket)
	}
	b.sessions = make(map[*gws.Conn]*session)
	b.mu.Unlock()

	for _, socket := range sockets {
		_ = socket.NetConn().Close()
	}
}

func write(socket *gws.Conn, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	return socket.WriteMessage(gws.OpcodeText, buf.Bytes())
}

func (h *handler) OnOpen(socket *gws.Conn) {}

func (h *handler) OnClose(socket *gws.Conn, err error) {
	h.broker.mu.Lock()
	delete(h.broker.sessions, socket)
	h.broker.mu.Unlock()
}

func (h *handler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (h *handler) OnPong(socket *gws.Conn, payload []byte) {}

func (h *handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	r := frame.NewReader(bytes.NewReader(message.Bytes()))
	for {
		f, err := r.Read()
		if err != nil {
			return
		}
		if f == nil {
			continue
		}
		h.handleFrame(socket, f)
	}
}

func (h *handler) handleFrame(socket *gws.Conn, f *frame.Frame) {
	b := h.broker
	switch f.Command {
	case "CONNECT", "STOMP":
		auth := f.Header.Get("Authorization")
		b.mu.Lock()
		b.authHeaders = append(b.authHeaders, auth)
		required := b.requiredToken
		b.mu.Unlock()

		if required != "" && strings.TrimPrefix(auth, "Bearer ") != required {
			_ = write(socket, frame.New("ERROR", "message", "Unauthorized"))
			return
		}

		b.mu.Lock()
		b.sessions[socket] = &session{subs: make(map[string]string)}
		b.connects++
		b.mu.Unlock()
		_ = write(socket, frame.New("CONNECTED", "version", "1.2", "heart-beat", "0,0"))

	case "SUBSCRIBE":
		b.mu.Lock()
		if s, ok := b.sessions[socket]; ok {
			s.subs[f.Header.Get("id")] = f.Header.Get("destination")
		}
		b.mu.Unlock()

	case "UNSUBSCRIBE":
		b.mu.Lock()
		if s, ok := b.sessions[socket]; ok {
			delete(s.subs, f.Header.Get("id"))
		}
		b.mu.Unlock()

	case "DISCONNECT":
		b.mu.Lock()
		delete(b.sessions, socket)
		b.mu.Unlock()

	default:
		_ = write(socket, frame.New("ERROR", "message", "unsupported command "+f.Command))
	}
}
