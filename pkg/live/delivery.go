package live

import "sync"

type delivery struct {
	topic string
	body  string
}

// subscription owns the ordered delivery queue of one Subscribe call.
// Messages of a topic reach the handler in the order the broker sent them.
type subscription struct {
	id      string
	handler Handler
	queue   chan delivery
	stop    chan struct{}
	once    sync.Once
}

func newSubscription(id string, handler Handler, size int) *subscription {
	s := &subscription{
		id:      id,
		handler: handler,
		queue:   make(chan delivery, size),
		stop:    make(chan struct{}),
	}
	go s.run()
	return s
}

// enqueue reports false when the subscription is stopped or its queue is full.
func (s *subscription) enqueue(d delivery) bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	select {
	case s.queue <- d:
		return true
	default:
		return false
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.stop:
			return
		case d := <-s.queue:
			select {
			case <-s.stop:
				return
			default:
			}
			s.handler(d.body, d.topic)
		}
	}
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.stop) })
}
