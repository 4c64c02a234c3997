package upstream

import (
	"context"

	"github.com/zeusync/emitter/internal/core/events/dispatch"
	"github.com/zeusync/emitter/internal/core/protocol/command"
)

// Link is one live connection to the game server. ReadFrame is called by a
// single reader; WriteCommand may be called concurrently with it.
type Link interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteCommand(ctx context.Context, cmd command.Command) error
	Close() error
}

// Dialer opens links. Implementations live in the websocket and quic
// packages.
type Dialer interface {
	Dial(ctx context.Context) (Link, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Link, error)

func (f DialerFunc) Dial(ctx context.Context) (Link, error) {
	return f(ctx)
}

// Processor consumes inbound frames. *dispatch.Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, frame []byte) (dispatch.Result, error)
}

// Stager is a Processor that can split a cycle. The session runs Begin on
// the reader and finishes each cycle on its own goroutine, so a callback
// that waits for a later frame does not stall the reader.
// *dispatch.Pipeline satisfies it.
type Stager interface {
	Begin(ctx context.Context, frame []byte) (*dispatch.Cycle, error)
}

// FrameHook sees every inbound frame before it is processed. Hooks must not
// retain frame.
type FrameHook func(frame []byte)
