package wire

import "encoding/json"

// Slot holds an optional category payload. The zero value is absent.
type Slot[T any] struct {
	value   T
	present bool
}

func (s *Slot[T]) Get() (T, bool) {
	return s.value, s.present
}

func (s *Slot[T]) Set(v T) {
	s.value = v
	s.present = true
}

func (s *Slot[T]) Clear() {
	var zero T
	s.value = zero
	s.present = false
}

func (s *Slot[T]) Present() bool {
	return s.present
}

func (s *Slot[T]) decode(raw []byte) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	s.Set(v)
	return nil
}

func (s *Slot[T]) encode() ([]byte, error) {
	return json.Marshal(s.value)
}

type slotCodec interface {
	Present() bool
	Clear()
	decode(raw []byte) error
	encode() ([]byte, error)
}
