package dispatch

import (
	"context"
	"strings"

	"github.com/zeusync/emitter/internal/core/events/registry"
	"github.com/zeusync/emitter/internal/core/wire"
)

// DefaultWarnPrefixes are the server warnings dropped before they reach the
// consumer.
var DefaultWarnPrefixes = []string{"Pakiet odrzucony"}

// RegisterDefaults installs the built-in interceptors. A nil prefixes slice
// selects DefaultWarnPrefixes; an empty one installs nothing.
func RegisterDefaults(reg *registry.Registry, prefixes []string) ([]registry.CallbackID, error) {
	if prefixes == nil {
		prefixes = DefaultWarnPrefixes
	}
	if len(prefixes) == 0 {
		return nil, nil
	}

	id, err := reg.Intercept(wire.CategoryWarn, registry.Forever(), WarnFilter(prefixes))
	if err != nil {
		return nil, err
	}
	return []registry.CallbackID{id}, nil
}

// WarnFilter removes the warning when it starts with one of prefixes.
func WarnFilter(prefixes []string) registry.Interceptor {
	prefixes = append([]string(nil), prefixes...)
	return func(_ context.Context, d *wire.Diff) error {
		warn, ok := d.Warn()
		if !ok {
			return nil
		}
		for _, p := range prefixes {
			if strings.HasPrefix(warn, p) {
				d.Remove(wire.CategoryWarn)
				return nil
			}
		}
		return nil
	}
}
