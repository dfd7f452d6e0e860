// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package com2bus

import "fmt"

// Parser assembles messages one byte at a time.
//
// Start begins a frame with its type byte and Feed consumes every byte after
// it. The parser never checks the CRC; callers run Verify on the result.
type Parser struct {
	state   ParserState
	pos     int // bytes of the current frame consumed so far
	limit   int
	msgType uint8
	address uint8
	length  uint8
	data    [MaxDataLength]byte
	crc     uint16
	raw     []byte
}

// NewParser creates a parser that accepts any frame the wire format can express.
func NewParser() *Parser {
	return NewParserWithLimit(MaxDataLength)
}

// NewParserWithLimit creates a parser that rejects frames carrying more
// than limit data bytes. limit is clamped to [0, MaxDataLength].
func NewParserWithLimit(limit int) *Parser {
	if limit < 0 {
		limit = 0
	}
	if limit > MaxDataLength {
		limit = MaxDataLength
	}
	return &Parser{
		state: StateIdle,
		limit: limit,
		raw:   make([]byte, 0, MaxFrameSize),
	}
}

// State returns the current parser state.
func (p *Parser) State() ParserState {
	return p.state
}

// Limit returns the largest data length the parser accepts.
func (p *Parser) Limit() int {
	return p.limit
}

// RawBytes returns the bytes of the current (or most recent) frame.
func (p *Parser) RawBytes() []byte {
	return p.raw
}

// Reset abandons any frame in progress.
func (p *Parser) Reset() {
	p.state = StateIdle
	p.pos = 0
}

// Start discards any frame in progress and begins a new one.
func (p *Parser) Start(msgType byte) {
	p.state = StateCollecting
	p.pos = 1
	p.msgType = msgType
	p.address = 0
	p.length = 0
	p.crc = 0
	p.raw = append(p.raw[:0], msgType)
}

// Feed consumes one byte of the current frame.
// Returns the completed message once the CRC trailer has been read,
// or nil while the frame is incomplete.
func (p *Parser) Feed(b byte) (*Message, error) {
	if p.state != StateCollecting {
		return nil, ErrFrameOverrun
	}

	length := int(p.length)
	switch {
	case p.pos == 1:
		p.address = b
	case p.pos == 2:
		if int(b) > p.limit {
			p.Reset()
			return nil, fmt.Errorf("%w: %d (max %d)", ErrOversizeLength, b, p.limit)
		}
		p.length = b
	case p.pos < HeaderSize+length:
		p.data[p.pos-HeaderSize] = b
	case p.pos == HeaderSize+length:
		p.crc = uint16(b) << 8
	default:
		p.crc |= uint16(b)
	}
	p.raw = append(p.raw, b)
	p.pos++

	if p.pos == Overhead+int(p.length) {
		p.state = StateIdle
		return &Message{
			Type:    p.msgType,
			Address: p.address,
			Data:    append([]byte(nil), p.data[:p.length]...),
			CRC:     p.crc,
		}, nil
	}
	return nil, nil
}
