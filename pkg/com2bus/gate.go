// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package com2bus

import "fmt"

// Transport is a bus connection that carries a marker bit with every byte.
type Transport interface {
	// Receive blocks until the next byte arrives.
	Receive() (b byte, marker bool, err error)
	// Send queues one byte for transmission with the given marker bit.
	Send(b byte, marker bool) error
	// Drain blocks until every queued byte has left the transmitter.
	Drain() error
}

// Gate maps the marker bit onto parser calls on receive and enforces the
// marker timing on transmit.
type Gate struct {
	transport Transport
	parser    *Parser
}

// NewGate creates a gate with a full-size parser.
func NewGate(t Transport) *Gate {
	return NewGateWithParser(t, NewParser())
}

// NewGateWithParser creates a gate around an existing parser.
func NewGateWithParser(t Transport, p *Parser) *Gate {
	return &Gate{transport: t, parser: p}
}

// Parser returns the receive parser.
func (g *Gate) Parser() *Parser {
	return g.parser
}

// Accept feeds one received byte to the parser. A marked byte always
// starts a new frame, which is how listeners regain sync after noise.
func (g *Gate) Accept(b byte, marker bool) (*Message, error) {
	if marker {
		g.parser.Start(b)
		return nil, nil
	}
	return g.parser.Feed(b)
}

// Receive reads from the transport until a frame completes or a byte is
// rejected. Transport errors are returned unwrapped.
func (g *Gate) Receive() (*Message, error) {
	for {
		b, marker, err := g.transport.Receive()
		if err != nil {
			return nil, err
		}
		msg, err := g.Accept(b, marker)
		if err != nil || msg != nil {
			return msg, err
		}
	}
}

// Transmit sends a frame: the type byte alone with the marker bit set,
// then the rest with it cleared. The marker is a per-byte line property,
// so each switch waits for the transmitter to go idle first.
func (g *Gate) Transmit(m *Message) error {
	frame, err := EncodeMessage(m)
	if err != nil {
		return err
	}

	if err := g.transport.Drain(); err != nil {
		return fmt.Errorf("drain before frame: %w", err)
	}
	if err := g.transport.Send(frame[0], true); err != nil {
		return fmt.Errorf("send type byte: %w", err)
	}
	if err := g.transport.Drain(); err != nil {
		return fmt.Errorf("drain after type byte: %w", err)
	}
	for i, b := range frame[1:] {
		if err := g.transport.Send(b, false); err != nil {
			return fmt.Errorf("send byte %d: %w", i+1, err)
		}
	}
	if err := g.transport.Drain(); err != nil {
		return fmt.Errorf("drain after frame: %w", err)
	}
	return nil
}
