package constants

import "errors"

// Client errors
var (
	ErrNoBaseURL      = errors.New("base url not set")
	ErrNoCodec        = errors.New("codec is not set")
	ErrMissingID      = errors.New("entity has no identifier")
	ErrEmptyReference = errors.New("reference must not be empty")
)

// Live channel errors
var (
	ErrNotConnected  = errors.New("live channel is not connected")
	ErrChannelClosed = errors.New("live channel is closed")
	ErrUnexpected    = errors.New("unexpected frame")
)

// Session errors
var (
	ErrNoSession      = errors.New("no session")
	ErrSessionExpired = errors.New("session expired")
)
