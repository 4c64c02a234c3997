package dispatch

import (
	"context"

	"github.com/zeusync/emitter/internal/core/events/registry"
	"github.com/zeusync/emitter/internal/core/wire"
)

// Consumer receives every forwarded frame. The frame is the original bytes
// when no interceptor ran and a re-encoded diff otherwise.
type Consumer interface {
	Consume(ctx context.Context, frame []byte) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, frame []byte) error

func (f ConsumerFunc) Consume(ctx context.Context, frame []byte) error {
	return f(ctx, frame)
}

// Observer is notified about dispatch cycles and callback executions.
// Implementations can export metrics or traces and should return quickly.
type Observer interface {
	OnFrame(frameID string, present []wire.Category, err error)
	OnCallback(cat wire.Category, role registry.Role, id registry.CallbackID, err error, durationMicros int64)
	OnForward(frameID string, reencoded bool, err error)
}

// Metrics is a snapshot of the pipeline counters.
type Metrics struct {
	Frames          uint64 `json:"frames"`
	DecodeErrors    uint64 `json:"decode_errors"`
	Forwarded       uint64 `json:"forwarded"`
	Reencoded       uint64 `json:"reencoded"`
	ForwardErrors   uint64 `json:"forward_errors"`
	InterceptorsRun uint64 `json:"interceptors_run"`
	HandlersRun     uint64 `json:"handlers_run"`
	CallbackErrors  uint64 `json:"callback_errors"`
	Suppressed      uint64 `json:"suppressed"`
	Resolved        uint64 `json:"resolved"`
}

// Result describes one dispatch cycle.
type Result struct {
	FrameID      string
	Present      []wire.Category
	Intercepted  map[wire.Category][]registry.CallbackID
	Suppressed   []wire.Category
	Handled      int
	HandledAfter int
	Reencoded    bool
	Forwarded    []byte
	ForwardErr   error
	Resolved     int
}

// Ran reports whether interceptor id ran for cat during the cycle.
func (r Result) Ran(cat wire.Category, id registry.CallbackID) bool {
	for _, got := range r.Intercepted[cat] {
		if got == id {
			return true
		}
	}
	return false
}
