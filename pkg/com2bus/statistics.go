// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package com2bus

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of Statistics.
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Bus receive
	TotalFrames    uint64 // completed frames, valid or not
	ValidFrames    uint64
	CRCErrors      uint64
	Overruns       uint64
	OversizeFrames uint64

	// Poll handling
	Polls            uint64
	UnknownPolls     uint64
	QueuedResponses  uint64
	DefaultResponses uint64
	TransmitErrors   uint64

	// Host side
	HostFrames   uint64
	HostRejected uint64 // bad CRC or wrong type
	HostEnqueued uint64

	// Drops on full queues
	PendingDrops   uint64
	BusToHostDrops uint64
	HostToBusDrops uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// Errors returns the number of receive errors.
func (c Counters) Errors() uint64 {
	return c.CRCErrors + c.Overruns + c.OversizeFrames
}

// Drops returns the number of messages dropped on full queues.
func (c Counters) Drops() uint64 {
	return c.PendingDrops + c.BusToHostDrops + c.HostToBusDrops
}

func (c *Counters) calculateRates() {
	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.FrameRate = float64(c.TotalFrames) / elapsed
		c.ErrorRate = float64(c.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (c Counters) String() string {
	c.calculateRates()

	var validPercent, crcErrorPercent float64
	if c.TotalFrames > 0 {
		validPercent = float64(c.ValidFrames) * 100.0 / float64(c.TotalFrames)
		crcErrorPercent = float64(c.CRCErrors) * 100.0 / float64(c.TotalFrames)
	}

	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", c.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", c.ValidFrames, validPercent)

	if c.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", c.CRCErrors, crcErrorPercent)
	}
	if c.Overruns > 0 {
		result += fmt.Sprintf("Overruns:        %8d\n", c.Overruns)
	}
	if c.OversizeFrames > 0 {
		result += fmt.Sprintf("Oversize:        %8d\n", c.OversizeFrames)
	}
	if c.Polls > 0 {
		result += fmt.Sprintf("Polls:           %8d\n", c.Polls)
		result += fmt.Sprintf("  Queued Reply:     %5d\n", c.QueuedResponses)
		result += fmt.Sprintf("  Default Reply:    %5d\n", c.DefaultResponses)
		result += fmt.Sprintf("  Unknown Address:  %5d\n", c.UnknownPolls)
	}
	if c.TransmitErrors > 0 {
		result += fmt.Sprintf("Transmit Errors: %8d\n", c.TransmitErrors)
	}
	if c.HostFrames > 0 {
		result += fmt.Sprintf("Host Frames:     %8d (%d enqueued, %d rejected)\n", c.HostFrames, c.HostEnqueued, c.HostRejected)
	}
	if drops := c.Drops(); drops > 0 {
		result += fmt.Sprintf("Queue Drops:     %8d (pending %d, to host %d, to bus %d)\n",
			drops, c.PendingDrops, c.BusToHostDrops, c.HostToBusDrops)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", c.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Statistics tracks gateway counters. Safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{StartTime: now, LastUpdateTime: now}}
}

func (s *Statistics) update(fn func(c *Counters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.c)
	s.c.LastUpdateTime = time.Now()
}

// RecordReceive classifies the outcome of one receive step. A nil message
// with a nil error (frame still in progress) is not counted.
func (s *Statistics) RecordReceive(m *Message, err error) {
	if m == nil && err == nil {
		return
	}
	s.update(func(c *Counters) {
		switch {
		case err == nil:
			c.TotalFrames++
			c.ValidFrames++
		case errors.Is(err, ErrCRCMismatch):
			c.TotalFrames++
			c.CRCErrors++
		case errors.Is(err, ErrFrameOverrun):
			c.Overruns++
		case errors.Is(err, ErrOversizeLength):
			c.OversizeFrames++
		}
	})
}

// RecordPoll counts a poll and how it was answered.
func (s *Statistics) RecordPoll(seen bool, queued bool) {
	s.update(func(c *Counters) {
		c.Polls++
		switch {
		case !seen:
			c.UnknownPolls++
		case queued:
			c.QueuedResponses++
		default:
			c.DefaultResponses++
		}
	})
}

// RecordTransmitError counts a failed response transmission.
func (s *Statistics) RecordTransmitError() {
	s.update(func(c *Counters) { c.TransmitErrors++ })
}

// RecordHostFrame counts a frame read from the host link.
func (s *Statistics) RecordHostFrame(accepted bool) {
	s.update(func(c *Counters) {
		c.HostFrames++
		if !accepted {
			c.HostRejected++
		}
	})
}

// RecordHostEnqueue counts a host frame that reached the pending queue.
func (s *Statistics) RecordHostEnqueue() {
	s.update(func(c *Counters) { c.HostEnqueued++ })
}

// RecordPendingDrop counts a host frame dropped on a full pending queue.
func (s *Statistics) RecordPendingDrop() {
	s.update(func(c *Counters) { c.PendingDrops++ })
}

// RecordBusToHostDrop counts a bus frame dropped on a full host queue.
func (s *Statistics) RecordBusToHostDrop() {
	s.update(func(c *Counters) { c.BusToHostDrops++ })
}

// RecordHostToBusDrop counts a host frame dropped on a full bus queue.
func (s *Statistics) RecordHostToBusDrop() {
	s.update(func(c *Counters) { c.HostToBusDrops++ })
}

// Snapshot returns a copy of the counters with rates calculated.
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()
	c.calculateRates()
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	return s.Snapshot().String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	s.mu.Lock()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
	s.mu.Unlock()
}
