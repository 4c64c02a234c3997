package command

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid command argument")
	ErrNoSender        = errors.New("no command sender")
	ErrRequestTimeout  = errors.New("request timed out waiting for response")
)
