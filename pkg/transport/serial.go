// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
)

// Serial is a multidrop UART using the parity bit as the marker bit.
//
// The line idles in mark parity, so a frame's type byte goes out with the
// parity bit set. The remaining bytes are sent in space parity and the line
// returns to mark once they have drained. On receive the port checks for
// mark parity: a byte that passes is marked, a byte reported as a parity
// error is not.
type Serial struct {
	port serial.Port
	ctl  *parityControl
	mode serial.Mode

	txLock sync.Mutex
	marker bool // parity currently selected for transmit

	rxBuf   []byte
	decoder ParityDecoder
	closed  atomic.Bool
}

// OpenSerial opens a serial port for bus use. Only 8 data bits and one stop
// bit are supported.
func OpenSerial(portName string, baudRate int) (*Serial, error) {
	// The control handle must be opened first: the serial library claims the
	// port exclusively and clears PARMRK while switching to raw mode.
	ctl, err := openParityControl(portName)
	if err != nil {
		return nil, err
	}

	mode := serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.MarkParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, &mode)
	if err != nil {
		ctl.Close()
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}

	if err := ctl.enable(); err != nil {
		port.Close()
		ctl.Close()
		return nil, fmt.Errorf("failed to enable parity marking on %s: %w", portName, err)
	}

	return &Serial{
		port:   port,
		ctl:    ctl,
		mode:   mode,
		marker: true,
		rxBuf:  make([]byte, 128),
	}, nil
}

// Receive implements com2bus.Transport.
func (s *Serial) Receive() (byte, bool, error) {
	for {
		if sym, ok := s.decoder.Next(); ok {
			return sym.Byte, !sym.ParityError, nil
		}
		n, err := s.port.Read(s.rxBuf)
		if s.closed.Load() {
			return 0, false, ErrClosed
		}
		if err != nil {
			return 0, false, err
		}
		s.decoder.Write(s.rxBuf[:n])
	}
}

// Send implements com2bus.Transport. Switching parity drains the
// transmitter first so the change lands between bytes.
func (s *Serial) Send(b byte, marker bool) error {
	s.txLock.Lock()
	defer s.txLock.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	if marker != s.marker {
		if err := s.setMarker(marker); err != nil {
			return err
		}
	}
	_, err := s.port.Write([]byte{b})
	return err
}

// Drain implements com2bus.Transport. The line is returned to mark parity
// once idle so the receive side keeps checking for marked bytes.
func (s *Serial) Drain() error {
	s.txLock.Lock()
	defer s.txLock.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.port.Drain(); err != nil {
		return err
	}
	if !s.marker {
		return s.setMarker(true)
	}
	return nil
}

func (s *Serial) setMarker(marker bool) error {
	if err := s.port.Drain(); err != nil {
		return err
	}
	s.mode.Parity = serial.SpaceParity
	if marker {
		s.mode.Parity = serial.MarkParity
	}
	if err := s.port.SetMode(&s.mode); err != nil {
		return fmt.Errorf("set parity: %w", err)
	}
	// SetMode rewrites the input flags on some platforms.
	if err := s.ctl.enable(); err != nil {
		return fmt.Errorf("set parity: %w", err)
	}
	s.marker = marker
	return nil
}

// Close closes the port.
func (s *Serial) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.port.Close()
	s.ctl.Close()
	return err
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
