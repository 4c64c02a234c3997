package relay

import "errors"

var (
	ErrRelayClosed  = errors.New("relay is closed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrSlowClient   = errors.New("client send buffer is full")
)
