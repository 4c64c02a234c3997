package registry

import "fmt"

// Role selects the phase a callback runs in.
type Role uint8

const (
	RoleIntercept Role = iota
	RoleHandle
	RoleHandleAfter
)

func (r Role) String() string {
	switch r {
	case RoleIntercept:
		return "intercept"
	case RoleHandle:
		return "handle"
	case RoleHandleAfter:
		return "handle_after"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func (r Role) valid() bool {
	return r <= RoleHandleAfter
}

// Lifetime bounds how many times a callback runs before it removes itself.
type Lifetime struct {
	runs int
}

const unbounded = -1

// Forever keeps the callback until it is unregistered.
func Forever() Lifetime {
	return Lifetime{runs: unbounded}
}

// Times allows n executions. It panics if n < 1.
func Times(n int) Lifetime {
	if n < 1 {
		panic(fmt.Sprintf("registry: Times(%d): count must be at least 1", n))
	}
	return Lifetime{runs: n}
}

// Once is Times(1).
func Once() Lifetime {
	return Times(1)
}

func (l Lifetime) Bounded() bool {
	return l.runs != unbounded
}

func (l Lifetime) String() string {
	switch l.runs {
	case unbounded:
		return "forever"
	case 1:
		return "once"
	default:
		return fmt.Sprintf("times(%d)", l.runs)
	}
}
