package live

import "fmt"

// ChannelError reports a connection or subscription failure. The channel
// logs it and keeps retrying; it is never fatal to subscribers.
type ChannelError struct {
	Op    string
	Topic string
	Err   error
}

func (e *ChannelError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("live: %s %s: %v", e.Op, e.Topic, e.Err)
	}
	return fmt.Sprintf("live: %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
