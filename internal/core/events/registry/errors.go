package registry

import "errors"

var (
	ErrNilCallback     = errors.New("registry: callback is nil")
	ErrRoleMismatch    = errors.New("registry: callback type does not match role")
	ErrInvalidRole     = errors.New("registry: invalid role")
	ErrInvalidLifetime = errors.New("registry: invalid lifetime")
	ErrCallbackPanic   = errors.New("registry: callback panicked")
)
