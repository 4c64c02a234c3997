package upstream

import "errors"

var (
	ErrSessionClosed   = errors.New("session is closed")
	ErrReconnectFailed = errors.New("reconnection failed")
	ErrAlreadyRunning  = errors.New("session is already running")
)
