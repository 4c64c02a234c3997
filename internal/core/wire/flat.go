package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// flatReader walks a flat positional array of fixed-stride records. The first
// failed conversion is kept and every later read returns a zero value.
type flatReader struct {
	elems  []json.RawMessage
	stride int
	pos    int
	last   int
	err    error
}

func newFlatReader(raw []byte, stride int) (*flatReader, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: expected flat array: %v", ErrMalformedField, err)
	}
	if len(elems)%stride != 0 {
		return nil, fmt.Errorf("%w: %d elements is not a multiple of %d", ErrTruncatedRecord, len(elems), stride)
	}
	return &flatReader{elems: elems, stride: stride}, nil
}

// more reports whether another record starts at the cursor. The leading
// discriminant is unreadable only once the sequence is exhausted.
func (r *flatReader) more() bool {
	return r.err == nil && r.pos < len(r.elems)
}

func (r *flatReader) records() int {
	return len(r.elems) / r.stride
}

func (r *flatReader) next() json.RawMessage {
	r.last = r.pos
	if r.pos >= len(r.elems) {
		r.fail(ErrTruncatedRecord)
		return nil
	}
	e := r.elems[r.pos]
	r.pos++
	return e
}

func (r *flatReader) fail(err error) {
	if r.err != nil {
		return
	}
	r.err = &FieldError{Record: r.last / r.stride, Field: r.last % r.stride, Err: err}
}

func (r *flatReader) string() string {
	if r.err != nil {
		return ""
	}
	raw := r.next()
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		r.fail(err)
		return ""
	}
	return s
}

// quotedInt reads a JSON string holding a signed integer.
func (r *flatReader) quotedInt(bits int) int64 {
	s := r.string()
	if r.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		r.fail(err)
		return 0
	}
	return v
}

// quotedUint reads a JSON string holding an unsigned integer.
func (r *flatReader) quotedUint(bits int) uint64 {
	s := r.string()
	if r.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		r.fail(err)
		return 0
	}
	return v
}

func (r *flatReader) int(bits int) int64 {
	if r.err != nil {
		return 0
	}
	raw := r.next()
	if raw == nil {
		return 0
	}
	v, err := strconv.ParseInt(string(raw), 10, bits)
	if err != nil {
		r.fail(err)
		return 0
	}
	return v
}

func (r *flatReader) uint(bits int) uint64 {
	if r.err != nil {
		return 0
	}
	raw := r.next()
	if raw == nil {
		return 0
	}
	v, err := strconv.ParseUint(string(raw), 10, bits)
	if err != nil {
		r.fail(err)
		return 0
	}
	return v
}

func (r *flatReader) profession() Profession {
	s := r.string()
	if r.err != nil {
		return 0
	}
	p, err := ParseProfession(s)
	if err != nil {
		r.fail(err)
		return 0
	}
	return p
}
