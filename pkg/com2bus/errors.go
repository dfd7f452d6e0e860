// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package com2bus

import "errors"

var (
	// ErrCRCMismatch indicates the received CRC does not match the frame contents.
	ErrCRCMismatch = errors.New("crc mismatch")
	// ErrFrameOverrun indicates a byte arrived outside an active frame.
	// The parser stays idle until the next marked byte.
	ErrFrameOverrun = errors.New("frame overrun")
	// ErrQueueFull indicates a bounded queue rejected an item.
	ErrQueueFull = errors.New("queue full")
	// ErrOversizeLength indicates a length byte larger than the receive buffer.
	ErrOversizeLength = errors.New("oversize length")
	// ErrShortFrame indicates a buffer too short to hold the frame it describes.
	ErrShortFrame = errors.New("short frame")
	// ErrUnexpectedType indicates a host frame that is not a data response.
	ErrUnexpectedType = errors.New("unexpected message type")
	// ErrInvalidHex indicates a malformed line on the hex debug channel.
	ErrInvalidHex = errors.New("invalid hex line")
)
