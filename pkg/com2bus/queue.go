// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package com2bus

import "fmt"

// Queue is a bounded FIFO handing messages from one goroutine to another.
// Puts never block: a full queue drops the new message.
type Queue struct {
	ch chan *Message
}

// NewQueue creates a queue holding at most capacity messages.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan *Message, capacity)}
}

// TryPut appends m, or returns ErrQueueFull.
func (q *Queue) TryPut(m *Message) error {
	select {
	case q.ch <- m:
		return nil
	default:
		return fmt.Errorf("%w: bridge queue at capacity %d", ErrQueueFull, cap(q.ch))
	}
}

// TryGet removes the oldest message. ok is false when the queue is empty.
func (q *Queue) TryGet() (m *Message, ok bool) {
	select {
	case m = <-q.ch:
		return m, true
	default:
		return nil, false
	}
}

// C returns the receive side for use in select statements.
func (q *Queue) C() <-chan *Message {
	return q.ch
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Bridge is the pair of queues between the bus side and the host side.
type Bridge struct {
	ToHost *Queue // bus -> host
	ToBus  *Queue // host -> bus
}

// NewBridge creates both queues at BridgeQueueCapacity.
func NewBridge() *Bridge {
	return &Bridge{
		ToHost: NewQueue(BridgeQueueCapacity),
		ToBus:  NewQueue(BridgeQueueCapacity),
	}
}
