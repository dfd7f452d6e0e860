// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package com2bus

import (
	"container/list"
	"fmt"
)

// AddressSet is a bounded set of bus addresses. Once full, new addresses
// are ignored; entries are never removed.
type AddressSet struct {
	addrs    []uint8
	capacity int
}

// NewAddressSet creates an empty set holding at most capacity addresses.
func NewAddressSet(capacity int) *AddressSet {
	return &AddressSet{
		addrs:    make([]uint8, 0, capacity),
		capacity: capacity,
	}
}

// Add inserts an address. Returns false if it was already present or the
// set is full.
func (s *AddressSet) Add(addr uint8) bool {
	if s.Contains(addr) || len(s.addrs) >= s.capacity {
		return false
	}
	s.addrs = append(s.addrs, addr)
	return true
}

// Contains reports whether addr is in the set.
func (s *AddressSet) Contains(addr uint8) bool {
	for _, a := range s.addrs {
		if a == addr {
			return true
		}
	}
	return false
}

// Len returns the number of addresses.
func (s *AddressSet) Len() int {
	return len(s.addrs)
}

// Cap returns the capacity.
func (s *AddressSet) Cap() int {
	return s.capacity
}

// Addresses returns the addresses in insertion order.
func (s *AddressSet) Addresses() []uint8 {
	return append([]uint8(nil), s.addrs...)
}

// PendingQueue holds responses waiting for their address to be polled.
// Order is insertion order across all addresses.
type PendingQueue struct {
	items    *list.List
	capacity int
}

// NewPendingQueue creates an empty queue holding at most capacity messages.
func NewPendingQueue(capacity int) *PendingQueue {
	return &PendingQueue{
		items:    list.New(),
		capacity: capacity,
	}
}

// Push appends a message, or returns ErrQueueFull.
func (q *PendingQueue) Push(m *Message) error {
	if q.items.Len() >= q.capacity {
		return fmt.Errorf("%w: pending queue at capacity %d", ErrQueueFull, q.capacity)
	}
	q.items.PushBack(m)
	return nil
}

// RemoveFirst removes and returns the oldest message matching fn, or nil.
func (q *PendingQueue) RemoveFirst(fn func(*Message) bool) *Message {
	for e := q.items.Front(); e != nil; e = e.Next() {
		m := e.Value.(*Message)
		if fn(m) {
			q.items.Remove(e)
			return m
		}
	}
	return nil
}

// RemoveFirstFor removes and returns the oldest message for addr, or nil.
func (q *PendingQueue) RemoveFirstFor(addr uint8) *Message {
	return q.RemoveFirst(func(m *Message) bool {
		return m.Address == addr
	})
}

// Len returns the number of queued messages.
func (q *PendingQueue) Len() int {
	return q.items.Len()
}

// Cap returns the capacity.
func (q *PendingQueue) Cap() int {
	return q.capacity
}

// Messages returns the queued messages, oldest first.
func (q *PendingQueue) Messages() []*Message {
	out := make([]*Message, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Message))
	}
	return out
}
