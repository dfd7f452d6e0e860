// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import "sync"

// Pipe is one end of an in-memory bus link. Symbols sent on one end are
// received, in order, on the other.
type Pipe struct {
	rx   <-chan Symbol
	tx   chan<- Symbol
	done chan struct{}
	once *sync.Once
}

// NewPipe creates a connected pair of pipe ends. buffer is the number of
// symbols each direction holds before Send blocks. Closing either end
// closes both.
func NewPipe(buffer int) (*Pipe, *Pipe) {
	ab := make(chan Symbol, buffer)
	ba := make(chan Symbol, buffer)
	done := make(chan struct{})
	once := &sync.Once{}
	return &Pipe{rx: ba, tx: ab, done: done, once: once},
		&Pipe{rx: ab, tx: ba, done: done, once: once}
}

// Receive implements com2bus.Transport.
func (p *Pipe) Receive() (byte, bool, error) {
	select {
	case <-p.done:
		return 0, false, ErrClosed
	default:
	}
	select {
	case s := <-p.rx:
		return s.Byte, s.Marker, nil
	case <-p.done:
		return 0, false, ErrClosed
	}
}

// Send implements com2bus.Transport.
func (p *Pipe) Send(b byte, marker bool) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.tx <- Symbol{Byte: b, Marker: marker}:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// Drain implements com2bus.Transport. Sent symbols are already visible to
// the peer, so there is nothing to wait for.
func (p *Pipe) Drain() error {
	select {
	case <-p.done:
		return ErrClosed
	default:
		return nil
	}
}

// SendFrame sends an encoded frame with the marker on its first byte.
func (p *Pipe) SendFrame(frame []byte) error {
	for _, s := range FrameSymbols(frame) {
		if err := p.Send(s.Byte, s.Marker); err != nil {
			return err
		}
	}
	return nil
}

// Close closes both ends.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
