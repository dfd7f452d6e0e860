// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides com2bus bus connections that carry the marker
// bit alongside every byte: a real multidrop serial port using mark/space
// parity, a websocket bridge with software framing, and an in-memory pipe.
package transport

import (
	"errors"

	"github.com/Thermoquad/com2gate/pkg/com2bus"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport: closed")
	// ErrMalformed indicates a software-framed message that cannot be decoded.
	ErrMalformed = errors.New("transport: malformed message")
	// ErrUnsupported indicates the platform cannot report per-byte parity.
	ErrUnsupported = errors.New("transport: parity marking not supported on this platform")
)

// Transport is a com2bus transport that can be closed.
type Transport interface {
	com2bus.Transport
	Close() error
}

// Symbol is one byte on the bus with its marker bit.
type Symbol struct {
	Byte   byte
	Marker bool
}

// FrameSymbols returns the symbols of an encoded frame: the first byte
// marked, the rest not.
func FrameSymbols(frame []byte) []Symbol {
	out := make([]Symbol, len(frame))
	for i, b := range frame {
		out[i] = Symbol{Byte: b, Marker: i == 0}
	}
	return out
}
