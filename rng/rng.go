// Package rng turns a per-call seed into a stream of independent draws.
// Every logical chance consumes its own bytes; nothing is ever re-read.
package rng

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// Source yields successive random draws.
type Source interface {
	Byte() byte
	Uint64() uint64
}

// Stream expands a seed into an unbounded byte stream by hashing
// seed || counter, one SHA-256 block at a time.
type Stream struct {
	seed    []byte
	counter uint64
	buf     []byte
}

// NewStream returns a Stream over seed. The seed is copied.
func NewStream(seed []byte) *Stream {
	s := make([]byte, len(seed))
	copy(s, seed)
	return &Stream{seed: s}
}

func (s *Stream) refill() {
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], s.counter)
	s.counter++
	h := sha256.New()
	h.Write(s.seed)
	h.Write(ctr[:])
	s.buf = h.Sum(nil)
}

// Byte consumes and returns the next byte.
func (s *Stream) Byte() byte {
	if len(s.buf) == 0 {
		s.refill()
	}
	b := s.buf[0]
	s.buf = s.buf[1:]
	return b
}

// Uint64 consumes the next eight bytes, big-endian.
func (s *Stream) Uint64() uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(s.Byte())
	}
	return v
}

// ErrExhausted is the panic value raised when a Fixed source runs dry.
var ErrExhausted = errors.New("rng: fixed source exhausted")

// Fixed replays a scripted byte sequence. It is meant for tests and replays
// that need a specific branch; reading past the end panics with ErrExhausted.
type Fixed struct {
	bytes []byte
	pos   int
}

// NewFixed returns a Fixed source over b.
func NewFixed(b ...byte) *Fixed {
	return &Fixed{bytes: b}
}

func (f *Fixed) Byte() byte {
	if f.pos >= len(f.bytes) {
		panic(ErrExhausted)
	}
	b := f.bytes[f.pos]
	f.pos++
	return b
}

func (f *Fixed) Uint64() uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(f.Byte())
	}
	return v
}

// Consumed reports how many bytes have been drawn.
func (f *Fixed) Consumed() int { return f.pos }
