// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package transport

type parityControl struct{}

func openParityControl(name string) (*parityControl, error) {
	return nil, ErrUnsupported
}

func (c *parityControl) enable() error {
	return ErrUnsupported
}

func (c *parityControl) Close() error {
	return nil
}
