// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package com2bus

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case TypePoll:
		return "POLL"
	case TypeData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// FormatData formats data bytes as a bracketed hex list
func FormatData(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// FormatMessage formats a message into a human-readable line. The CRC is
// shown green when valid and red with the expected value when not.
func FormatMessage(m *Message) string {
	result := fmt.Sprintf("Message: type=%02x (%s), address=%02x, length=%02x, data=%s, crc=%04x ",
		m.Type, FormatMessageType(m.Type), m.Address, m.Length(), FormatData(m.Data), m.CRC)

	if crc := ComputeCRC(m); crc == m.CRC {
		result += "\033[32mvalid\033[0m"
	} else {
		result += fmt.Sprintf("\033[31minvalid (should be %04x)\033[0m", crc)
	}
	return result
}

// FormatMessagePlain is FormatMessage without color escapes
func FormatMessagePlain(m *Message) string {
	result := fmt.Sprintf("type=%02x (%s) address=%02x length=%d data=%s crc=%04x",
		m.Type, FormatMessageType(m.Type), m.Address, m.Length(), FormatData(m.Data), m.CRC)
	if crc := ComputeCRC(m); crc != m.CRC {
		result += fmt.Sprintf(" invalid (should be %04x)", crc)
	}
	return result
}

// EncodeHexLine encodes a message for the hex debug channel: the wire
// bytes as lower-case hex followed by a newline.
func EncodeHexLine(m *Message) (string, error) {
	frame, err := EncodeMessage(m)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(frame) + "\n", nil
}

// DecodeHexLine decodes one line from the hex debug channel. Surrounding
// whitespace (including the newline) is ignored. The line must hold exactly
// one frame.
func DecodeHexLine(line string) (*Message, error) {
	frame, err := hex.DecodeString(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	m, err := DecodeMessage(frame)
	if err != nil {
		return nil, err
	}
	if size := FrameSize(m.Length()); len(frame) != size {
		return nil, fmt.Errorf("%w: %d bytes for a %d byte frame", ErrInvalidHex, len(frame), size)
	}
	return m, nil
}
