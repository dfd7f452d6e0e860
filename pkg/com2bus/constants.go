// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package com2bus implements the com2bus multidrop serial protocol.
//
// Frames on the bus carry no delimiter byte. The first byte of every frame is
// sent with the marker (9th) bit set, every other byte with it cleared, so a
// listener resynchronizes by waiting for the next marked byte. This package
// provides the frame codec, the per-byte parser, the marker-bit framing gate
// and the poll/response relay that answers the bus master on behalf of
// addresses learned from the host.
package com2bus

// Wire layout
const (
	HeaderSize    = 3   // type, address, length
	TrailerSize   = 2   // CRC high, CRC low
	Overhead      = HeaderSize + TrailerSize
	MaxDataLength = 255 // the length field is a single byte
	MaxFrameSize  = Overhead + MaxDataLength
)

// XMODEM CRC-16 configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0x0000
)

// Reserved message types. Every other type is relayed untouched.
const (
	TypePoll = 0x4C
	TypeData = 0x6C
)

// Registry and queue capacities
const (
	SeenAddressCapacity  = 10
	PendingQueueCapacity = 100
	BridgeQueueCapacity  = 100
)

// ParserState is the state of a Parser.
type ParserState int

// Parser states
const (
	StateIdle ParserState = iota
	StateCollecting
)

// String returns the state name.
func (s ParserState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCollecting:
		return "COLLECTING"
	default:
		return "UNKNOWN"
	}
}
