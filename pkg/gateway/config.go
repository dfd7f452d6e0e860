// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Thermoquad/com2gate/pkg/capture"
	"github.com/Thermoquad/com2gate/pkg/com2bus"
	"github.com/Thermoquad/com2gate/pkg/transport"
)

// HostFormat selects how frames travel on the host link.
type HostFormat int

const (
	// HostRaw carries frames as wire bytes.
	HostRaw HostFormat = iota
	// HostHex carries one lower-case hex frame per line.
	HostHex
)

// String returns the flag name of the format.
func (f HostFormat) String() string {
	switch f {
	case HostRaw:
		return "raw"
	case HostHex:
		return "hex"
	default:
		return fmt.Sprintf("HostFormat(%d)", int(f))
	}
}

// ParseHostFormat parses "raw" or "hex".
func ParseHostFormat(s string) (HostFormat, error) {
	switch strings.ToLower(s) {
	case "raw":
		return HostRaw, nil
	case "hex":
		return HostHex, nil
	default:
		return 0, fmt.Errorf("unknown host format %q (use raw or hex)", s)
	}
}

// Config holds everything a Gateway needs.
type Config struct {
	// Bus is the marker-bit transport to the field bus. Run closes it.
	Bus transport.Transport

	// Host is the link to the host. Run closes it if it is an io.Closer.
	Host io.ReadWriter

	HostFormat HostFormat

	// Capture receives every frame seen on the bus, transmitted on the bus
	// or read from the host. Optional.
	Capture *capture.Writer

	// Stats collects counters. A new instance is created when nil.
	Stats *com2bus.Statistics

	// StatsInterval logs a statistics summary at this interval. Zero disables it.
	StatsInterval time.Duration

	// ShutdownTimeout bounds how long Run waits for blocked readers after
	// cancellation. Defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}
