package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Encode serialises the diff back into a frame. Removed categories are
// dropped, categories whose encoding still matches what was decoded keep
// their raw bytes, and changed object categories are merged back into the
// raw value so keys the diff does not model survive.
// Top-level keys are emitted in sorted order.
func Encode(d *Diff) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.raw))
	for k, v := range d.raw {
		out[k] = v
	}

	for _, c := range Categories() {
		key := c.Key()
		base, decoded := d.baselines[c]
		s := d.slot(c)
		if !s.Present() {
			if decoded {
				delete(out, key)
			}
			continue
		}

		now, err := s.encode()
		if err != nil {
			return nil, fmt.Errorf("wire: encode %q: %w", key, err)
		}
		if !decoded {
			out[key] = now
			continue
		}
		if xxhash.Sum64(now) == base.sum && bytes.Equal(now, base.encoded) {
			continue
		}
		merged, err := reconcile(d.raw[key], base.encoded, now)
		if err != nil {
			return nil, fmt.Errorf("wire: encode %q: %w", key, err)
		}
		out[key] = merged
	}

	return json.Marshal(out)
}

// reconcile applies the change from base to now onto raw. Keys dropped from
// base are deleted, changed keys are replaced and nested objects are walked.
// Keys that only raw carries are kept. Anything that is not an object on all
// three sides is replaced wholesale by now.
func reconcile(raw, base, now json.RawMessage) (json.RawMessage, error) {
	rawObj, ok := asObject(raw)
	if !ok {
		return now, nil
	}
	baseObj, ok := asObject(base)
	if !ok {
		return now, nil
	}
	nowObj, ok := asObject(now)
	if !ok {
		return now, nil
	}

	for k := range baseObj {
		if _, kept := nowObj[k]; !kept {
			delete(rawObj, k)
		}
	}
	for k, v := range nowObj {
		b, inBase := baseObj[k]
		if inBase && bytes.Equal(b, v) {
			continue
		}
		r, inRaw := rawObj[k]
		if !inBase || !inRaw {
			rawObj[k] = v
			continue
		}
		merged, err := reconcile(r, b, v)
		if err != nil {
			return nil, err
		}
		rawObj[k] = merged
	}
	return json.Marshal(rawObj)
}

func asObject(b json.RawMessage) (map[string]json.RawMessage, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, false
	}
	return m, true
}

// Forwardable returns the frame to hand downstream. When nothing touched the
// diff the original bytes are reused.
func Forwardable(d *Diff, modified bool) ([]byte, error) {
	if !modified && d.frame != nil {
		return d.frame, nil
	}
	return Encode(d)
}
