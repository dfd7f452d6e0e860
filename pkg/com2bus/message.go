// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package com2bus

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Message is one com2bus frame.
//
// The length byte on the wire is always len(Data); it is not stored
// separately so the two cannot disagree.
type Message struct {
	Type    uint8
	Address uint8
	Data    []byte
	CRC     uint16
}

// NewMessage creates a message and computes its CRC.
func NewMessage(msgType, address uint8, data []byte) (*Message, error) {
	if len(data) > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrOversizeLength, len(data), MaxDataLength)
	}
	m := &Message{
		Type:    msgType,
		Address: address,
		Data:    append([]byte(nil), data...),
	}
	m.Seal()
	return m, nil
}

// NewPoll creates the poll frame a bus master sends to address.
func NewPoll(address uint8, data []byte) (*Message, error) {
	return NewMessage(TypePoll, address, data)
}

// DefaultResponse returns the no-data answer for a seen address with nothing queued.
func DefaultResponse(address uint8) *Message {
	m := &Message{
		Type:    TypeData,
		Address: address,
		Data:    []byte{0x00, 0xFF},
	}
	m.Seal()
	return m
}

// Length returns the value of the length byte.
func (m *Message) Length() uint8 {
	return uint8(len(m.Data))
}

// Seal recomputes the CRC from the current contents.
func (m *Message) Seal() {
	m.CRC = ComputeCRC(m)
}

// IsPoll reports whether the message is a poll request.
func (m *Message) IsPoll() bool {
	return m.Type == TypePoll
}

// IsData reports whether the message is a data or no-data response.
func (m *Message) IsData() bool {
	return m.Type == TypeData
}

// Equal reports whether both messages have identical fields.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Type == o.Type &&
		m.Address == o.Address &&
		m.CRC == o.CRC &&
		bytes.Equal(m.Data, o.Data)
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	c := *m
	c.Data = append([]byte(nil), m.Data...)
	return &c
}

// ComputeCRC computes the CRC over type, address, length and data.
func ComputeCRC(m *Message) uint16 {
	var buf [MaxFrameSize]byte
	b := append(buf[:0], m.Type, m.Address, m.Length())
	b = append(b, m.Data...)
	return CalculateCRC(b)
}

// Verify reports whether the message CRC matches its contents.
func Verify(m *Message) bool {
	return ComputeCRC(m) == m.CRC
}

// CheckCRC is Verify with a descriptive error.
func CheckCRC(m *Message) error {
	if calculated := ComputeCRC(m); calculated != m.CRC {
		return fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, m.CRC)
	}
	return nil
}

// EncodeMessage lays a message out in wire format:
// [type][address][length][data...][crc_hi][crc_lo].
// The stored CRC is written as-is.
func EncodeMessage(m *Message) ([]byte, error) {
	if len(m.Data) > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrOversizeLength, len(m.Data), MaxDataLength)
	}
	frame := make([]byte, 0, Overhead+len(m.Data))
	frame = append(frame, m.Type, m.Address, m.Length())
	frame = append(frame, m.Data...)
	frame = binary.BigEndian.AppendUint16(frame, m.CRC)
	return frame, nil
}

// MustEncodeMessage is EncodeMessage that panics on oversize data.
func MustEncodeMessage(m *Message) []byte {
	frame, err := EncodeMessage(m)
	if err != nil {
		panic(fmt.Sprintf("com2bus: encode error: %v", err))
	}
	return frame
}

// DecodeMessage decodes the frame at the start of b. Bytes after the
// frame are ignored. The CRC is not checked.
func DecodeMessage(b []byte) (*Message, error) {
	if len(b) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes (min %d)", ErrShortFrame, len(b), Overhead)
	}
	length := int(b[2])
	if len(b) < Overhead+length {
		return nil, fmt.Errorf("%w: %d bytes for length %d", ErrShortFrame, len(b), length)
	}
	return &Message{
		Type:    b[0],
		Address: b[1],
		Data:    append([]byte(nil), b[HeaderSize:HeaderSize+length]...),
		CRC:     binary.BigEndian.Uint16(b[HeaderSize+length:]),
	}, nil
}

// FrameSize returns the encoded size for a data length.
func FrameSize(length uint8) int {
	return Overhead + int(length)
}
