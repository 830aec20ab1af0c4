package constants

import (
	"strconv"
	"time"
)

var (
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
)

const (
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultReconnectInterval = 5 * time.Second
	DefaultPageSize          = 10
	DefaultLocale            = "en"

	// DeliveryBufferSize bounds the per-subscription queue of pending live messages.
	DeliveryBufferSize = 100

	// GlobalTopic is broadcast to every console session.
	GlobalTopic = "/topic/global"
	// TopicPrefix prefixes per-resource topics, e.g. /topic/box.
	TopicPrefix = "/topic"

	// DeletedSentinel is published instead of a record when one is removed.
	DeletedSentinel = "deleted"
)

// UserTopic is the topic carrying messages addressed to one user.
func UserTopic(id int64) string {
	return TopicPrefix + "/user/" + strconv.FormatInt(id, 10)
}
