// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// parityControl is a second handle on the tty used to change input flags
// the serial library does not expose. Termios settings belong to the
// device, so changes made here apply to the library's handle as well.
type parityControl struct {
	fd int
}

func openParityControl(name string) (*parityControl, error) {
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return &parityControl{fd: fd}, nil
}

// enable turns on input parity checking with PARMRK escapes.
func (c *parityControl) enable() error {
	t, err := unix.IoctlGetTermios(c.fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag |= unix.INPCK | unix.PARMRK
	t.Iflag &^= unix.IGNPAR | unix.ISTRIP
	return unix.IoctlSetTermios(c.fd, unix.TCSETS, t)
}

func (c *parityControl) Close() error {
	return unix.Close(c.fd)
}
