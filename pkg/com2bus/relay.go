// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package com2bus

import (
	"errors"
	"fmt"
)

// Transmitter puts a frame on the bus. *Gate implements it.
type Transmitter interface {
	Transmit(m *Message) error
}

// Relay answers bus polls on behalf of addresses learned from the host.
//
// The seen-address set and the pending queue are owned by the goroutine
// that drives the relay; none of its methods are safe for concurrent use.
// Only the host queue is shared.
type Relay struct {
	seen    *AddressSet
	pending *PendingQueue
	tx      Transmitter
	toHost  *Queue
	stats   *Statistics
}

// NewRelay creates a relay that transmits responses on tx and forwards valid
// bus frames to toHost. stats may be nil.
func NewRelay(tx Transmitter, toHost *Queue, stats *Statistics) *Relay {
	if stats == nil {
		stats = NewStatistics()
	}
	return &Relay{
		seen:    NewAddressSet(SeenAddressCapacity),
		pending: NewPendingQueue(PendingQueueCapacity),
		tx:      tx,
		toHost:  toHost,
		stats:   stats,
	}
}

// Seen returns the seen-address set.
func (r *Relay) Seen() *AddressSet {
	return r.seen
}

// Pending returns the pending response queue.
func (r *Relay) Pending() *PendingQueue {
	return r.pending
}

// Stats returns the statistics the relay records into.
func (r *Relay) Stats() *Statistics {
	return r.stats
}

// AcceptFromHost checks a frame read from the host link and enqueues it.
// Only CRC-valid data frames are accepted.
func (r *Relay) AcceptFromHost(m *Message) error {
	if err := CheckCRC(m); err != nil {
		r.stats.RecordHostFrame(false)
		return err
	}
	if !m.IsData() {
		r.stats.RecordHostFrame(false)
		return fmt.Errorf("%w: 0x%02X (want 0x%02X)", ErrUnexpectedType, m.Type, TypeData)
	}
	r.stats.RecordHostFrame(true)
	return r.EnqueueFromHost(m)
}

// EnqueueFromHost queues m as the next response for its address and marks
// the address as seen. The address is marked even when the queue is full so
// the bus master still gets the default answer.
func (r *Relay) EnqueueFromHost(m *Message) error {
	err := r.pending.Push(m)
	r.seen.Add(m.Address)
	if err != nil {
		r.stats.RecordPendingDrop()
		return err
	}
	r.stats.RecordHostEnqueue()
	return nil
}

// Respond picks the response to a poll for address without sending it.
// Returns nil for addresses the host never enqueued for.
func (r *Relay) Respond(address uint8) *Message {
	if !r.seen.Contains(address) {
		r.stats.RecordPoll(false, false)
		return nil
	}
	if m := r.pending.RemoveFirstFor(address); m != nil {
		r.stats.RecordPoll(true, true)
		return m
	}
	r.stats.RecordPoll(true, false)
	return DefaultResponse(address)
}

// HandlePoll answers a poll for address. Returns the transmitted response,
// or nil if the address is unknown.
func (r *Relay) HandlePoll(address uint8) (*Message, error) {
	resp := r.Respond(address)
	if resp == nil {
		return nil, nil
	}
	if err := r.tx.Transmit(resp); err != nil {
		r.stats.RecordTransmitError()
		return resp, fmt.Errorf("transmit response to 0x%02X: %w", address, err)
	}
	return resp, nil
}

// HandleFrame processes a frame received from the bus. Frames failing the
// CRC check are dropped. Valid polls are answered first, then every valid
// frame (polls included) is forwarded to the host queue.
func (r *Relay) HandleFrame(m *Message) (*Message, error) {
	if err := CheckCRC(m); err != nil {
		r.stats.RecordReceive(m, err)
		return nil, err
	}
	r.stats.RecordReceive(m, nil)

	var resp *Message
	var err error
	if m.IsPoll() {
		resp, err = r.HandlePoll(m.Address)
	}

	if qerr := r.toHost.TryPut(m); qerr != nil {
		r.stats.RecordBusToHostDrop()
		err = errors.Join(err, qerr)
	}
	return resp, err
}
