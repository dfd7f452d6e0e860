// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package com2bus

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

func mustMessage(t *testing.T, msgType, address uint8, data ...byte) *Message {
	t.Helper()
	m, err := NewMessage(msgType, address, data)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	return m
}

// feedFrame runs an encoded frame through a parser the way the gate does:
// Start on the first byte, Feed on the rest.
func feedFrame(t *testing.T, p *Parser, frame []byte) (*Message, int) {
	t.Helper()
	p.Start(frame[0])
	var result *Message
	completions := 0
	for i, b := range frame[1:] {
		msg, err := p.Feed(b)
		if err != nil {
			t.Fatalf("Feed byte %d: %v", i+1, err)
		}
		if msg != nil {
			completions++
			result = msg
		}
	}
	return result, completions
}

// recordingTransport records every transport call as a string.
type recordingTransport struct {
	events  []string
	rx      [][2]int // byte, marker (0/1)
	sendErr error
}

func (r *recordingTransport) Receive() (byte, bool, error) {
	if len(r.rx) == 0 {
		return 0, false, errors.New("no more bytes")
	}
	next := r.rx[0]
	r.rx = r.rx[1:]
	return byte(next[0]), next[1] == 1, nil
}

func (r *recordingTransport) Send(b byte, marker bool) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	if marker {
		r.events = append(r.events, fmt.Sprintf("M%02x", b))
	} else {
		r.events = append(r.events, fmt.Sprintf("%02x", b))
	}
	return nil
}

func (r *recordingTransport) Drain() error {
	r.events = append(r.events, "drain")
	return nil
}

func (r *recordingTransport) queueFrame(frame []byte) {
	for i, b := range frame {
		marker := 0
		if i == 0 {
			marker = 1
		}
		r.rx = append(r.rx, [2]int{int(b), marker})
	}
}

// captureTransmitter records transmitted messages.
type captureTransmitter struct {
	sent []*Message
	err  error
}

func (c *captureTransmitter) Transmit(m *Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, m)
	return nil
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x31C3, // XMODEM check value
		},
		{
			name:     "default response for 0x10",
			data:     []byte{0x6C, 0x10, 0x02, 0x00, 0xFF},
			expected: 0xF9C0,
		},
		{
			name:     "empty poll for 0x10",
			data:     []byte{0x4C, 0x10, 0x00},
			expected: 0x6BBF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

// ============================================================
// Codec Tests
// ============================================================

func TestEncodeMessage_Layout(t *testing.T) {
	m := mustMessage(t, TypeData, 0x10, 0x01, 0x02, 0x03)
	frame, err := EncodeMessage(m)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	expected := []byte{0x6C, 0x10, 0x03, 0x01, 0x02, 0x03, 0xAA, 0x4C}
	if !bytes.Equal(frame, expected) {
		t.Errorf("frame = % x, want % x", frame, expected)
	}
}

func TestEncodeMessage_Oversize(t *testing.T) {
	m := &Message{Type: TypeData, Data: make([]byte, MaxDataLength+1)}
	if _, err := EncodeMessage(m); !errors.Is(err, ErrOversizeLength) {
		t.Errorf("expected ErrOversizeLength, got %v", err)
	}
	if _, err := NewMessage(TypeData, 0, make([]byte, MaxDataLength+1)); !errors.Is(err, ErrOversizeLength) {
		t.Errorf("NewMessage: expected ErrOversizeLength, got %v", err)
	}
}

func TestDecodeMessage_RoundTrip(t *testing.T) {
	lengths := []int{0, 1, 2, 17, 254, MaxDataLength}
	for _, n := range lengths {
		t.Run(fmt.Sprintf("length_%d", n), func(t *testing.T) {
			data := make([]byte, n)
			for i := range data {
				data[i] = byte(i * 7)
			}
			m := mustMessage(t, 0x21, 0x42, data...)
			frame := MustEncodeMessage(m)
			if len(frame) != Overhead+n {
				t.Fatalf("frame length = %d, want %d", len(frame), Overhead+n)
			}

			decoded, err := DecodeMessage(frame)
			if err != nil {
				t.Fatalf("DecodeMessage: %v", err)
			}
			if !decoded.Equal(m) {
				t.Errorf("decoded %+v, want %+v", decoded, m)
			}

			again := MustEncodeMessage(decoded)
			if !bytes.Equal(again, frame) {
				t.Errorf("re-encoded % x, want % x", again, frame)
			}
		})
	}
}

func TestDecodeMessage_Short(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", []byte{}},
		{"header only", []byte{0x6C, 0x10, 0x00}},
		{"missing data", []byte{0x6C, 0x10, 0x03, 0x01, 0xAA, 0x4C}},
		{"missing crc low", []byte{0x6C, 0x10, 0x00, 0x12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMessage(tt.frame); !errors.Is(err, ErrShortFrame) {
				t.Errorf("expected ErrShortFrame, got %v", err)
			}
		})
	}
}

func TestDecodeMessage_IgnoresTrailingBytes(t *testing.T) {
	frame := append(MustEncodeMessage(DefaultResponse(0x10)), 0xDE, 0xAD)
	m, err := DecodeMessage(frame)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if !m.Equal(DefaultResponse(0x10)) {
		t.Errorf("got %+v", m)
	}
}

func TestVerify(t *testing.T) {
	m := mustMessage(t, TypePoll, 0x10)
	if !Verify(m) {
		t.Error("freshly sealed message should verify")
	}
	if err := CheckCRC(m); err != nil {
		t.Errorf("CheckCRC: %v", err)
	}

	m.CRC ^= 0x0001
	if Verify(m) {
		t.Error("corrupted CRC should not verify")
	}
	err := CheckCRC(m)
	if !errors.Is(err, ErrCRCMismatch) {
		t.Errorf("expected ErrCRCMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "0x6BBF") {
		t.Errorf("error should carry the expected CRC: %v", err)
	}
}

func TestDefaultResponse(t *testing.T) {
	m := DefaultResponse(0x10)
	if m.Type != TypeData || m.Address != 0x10 || m.Length() != 2 {
		t.Fatalf("unexpected default response %+v", m)
	}
	if !bytes.Equal(m.Data, []byte{0x00, 0xFF}) {
		t.Errorf("data = % x", m.Data)
	}
	if m.CRC != 0xF9C0 {
		t.Errorf("CRC = 0x%04X, want 0xF9C0", m.CRC)
	}
	if other := DefaultResponse(0x20); other.CRC == m.CRC {
		t.Error("CRC should depend on the address")
	}
}

func TestMessage_CloneIsDeep(t *testing.T) {
	m := mustMessage(t, TypeData, 1, 1, 2, 3)
	c := m.Clone()
	c.Data[0] = 9
	if m.Data[0] != 1 {
		t.Error("Clone shares the data slice")
	}
}

// ============================================================
// Parser Tests
// ============================================================

func TestParser_SingleFrame(t *testing.T) {
	m := mustMessage(t, TypeData, 0x10, 0x01, 0x02, 0x03)
	frame := MustEncodeMessage(m)

	p := NewParser()
	p.Start(frame[0])
	for i, b := range frame[1 : len(frame)-1] {
		msg, err := p.Feed(b)
		if err != nil {
			t.Fatalf("Feed byte %d: %v", i+1, err)
		}
		if msg != nil {
			t.Fatalf("completed early after %d bytes", i+2)
		}
		if p.State() != StateCollecting {
			t.Fatalf("state = %s, want COLLECTING", p.State())
		}
	}
	msg, err := p.Feed(frame[len(frame)-1])
	if err != nil {
		t.Fatalf("final Feed: %v", err)
	}
	if !msg.Equal(m) {
		t.Errorf("parsed %+v, want %+v", msg, m)
	}
	if p.State() != StateIdle {
		t.Errorf("state after completion = %s, want IDLE", p.State())
	}
	if !bytes.Equal(p.RawBytes(), frame) {
		t.Errorf("raw bytes = % x, want % x", p.RawBytes(), frame)
	}
}

func TestParser_ZeroLength(t *testing.T) {
	m := mustMessage(t, TypePoll, 0x33)
	msg, n := feedFrame(t, NewParser(), MustEncodeMessage(m))
	if n != 1 || !msg.Equal(m) {
		t.Errorf("got %d completions, msg %+v", n, msg)
	}
}

func TestParser_FeedWhileIdle(t *testing.T) {
	p := NewParser()
	if _, err := p.Feed(0x10); !errors.Is(err, ErrFrameOverrun) {
		t.Errorf("expected ErrFrameOverrun, got %v", err)
	}
}

func TestParser_FeedAfterCompletion(t *testing.T) {
	p := NewParser()
	feedFrame(t, p, MustEncodeMessage(DefaultResponse(0x10)))
	for i := 0; i < 3; i++ {
		msg, err := p.Feed(0xAA)
		if !errors.Is(err, ErrFrameOverrun) {
			t.Errorf("expected ErrFrameOverrun, got %v", err)
		}
		if msg != nil {
			t.Error("overrun byte produced a message")
		}
	}
	if p.State() != StateIdle {
		t.Errorf("state = %s, want IDLE", p.State())
	}
}

func TestParser_StartInterruptsFrame(t *testing.T) {
	p := NewParser()
	first := MustEncodeMessage(mustMessage(t, TypeData, 0x10, 1, 2, 3, 4))
	p.Start(first[0])
	for _, b := range first[1:4] {
		if _, err := p.Feed(b); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}

	second := mustMessage(t, TypePoll, 0x20)
	msg, n := feedFrame(t, p, MustEncodeMessage(second))
	if n != 1 || !msg.Equal(second) {
		t.Errorf("after restart got %d completions, msg %+v", n, msg)
	}
}

func TestParser_OversizeLength(t *testing.T) {
	p := NewParserWithLimit(4)
	p.Start(TypeData)
	if _, err := p.Feed(0x10); err != nil {
		t.Fatalf("Feed address: %v", err)
	}
	if _, err := p.Feed(5); !errors.Is(err, ErrOversizeLength) {
		t.Fatalf("expected ErrOversizeLength, got %v", err)
	}
	if p.State() != StateIdle {
		t.Errorf("state = %s, want IDLE", p.State())
	}
	if _, err := p.Feed(0x00); !errors.Is(err, ErrFrameOverrun) {
		t.Errorf("bytes after an oversize header should overrun, got %v", err)
	}

	ok := mustMessage(t, TypeData, 0x10, 1, 2, 3, 4)
	if msg, n := feedFrame(t, p, MustEncodeMessage(ok)); n != 1 || !msg.Equal(ok) {
		t.Errorf("frame at the limit should parse, got %d completions", n)
	}
}

func TestParser_LimitClamped(t *testing.T) {
	if l := NewParserWithLimit(1000).Limit(); l != MaxDataLength {
		t.Errorf("limit = %d, want %d", l, MaxDataLength)
	}
	if l := NewParserWithLimit(-3).Limit(); l != 0 {
		t.Errorf("limit = %d, want 0", l)
	}
}

func TestParser_DoesNotCheckCRC(t *testing.T) {
	frame := MustEncodeMessage(DefaultResponse(0x10))
	frame[len(frame)-1] ^= 0xFF
	msg, n := feedFrame(t, NewParser(), frame)
	if n != 1 {
		t.Fatalf("expected one completion, got %d", n)
	}
	if Verify(msg) {
		t.Error("corrupted frame should fail Verify")
	}
}

// ============================================================
// Gate Tests
// ============================================================

func TestGate_TransmitMarkerTiming(t *testing.T) {
	rt := &recordingTransport{}
	g := NewGate(rt)
	if err := g.Transmit(DefaultResponse(0x10)); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	expected := []string{"drain", "M6c", "drain", "10", "02", "00", "ff", "f9", "c0", "drain"}
	if strings.Join(rt.events, " ") != strings.Join(expected, " ") {
		t.Errorf("events = %v, want %v", rt.events, expected)
	}
}

func TestGate_TransmitError(t *testing.T) {
	rt := &recordingTransport{sendErr: errors.New("line down")}
	err := NewGate(rt).Transmit(DefaultResponse(0x10))
	if err == nil || !strings.Contains(err.Error(), "line down") {
		t.Errorf("expected wrapped send error, got %v", err)
	}
}

func TestGate_AcceptUsesMarker(t *testing.T) {
	g := NewGate(&recordingTransport{})
	if _, err := g.Accept(0x10, false); !errors.Is(err, ErrFrameOverrun) {
		t.Errorf("unmarked byte while idle should overrun, got %v", err)
	}
	frame := MustEncodeMessage(DefaultResponse(0x10))
	var got *Message
	for i, b := range frame {
		msg, err := g.Accept(b, i == 0)
		if err != nil {
			t.Fatalf("Accept byte %d: %v", i, err)
		}
		if msg != nil {
			got = msg
		}
	}
	if !got.Equal(DefaultResponse(0x10)) {
		t.Errorf("got %+v", got)
	}
}

func TestGate_ReceiveResyncsAfterGarbage(t *testing.T) {
	rt := &recordingTransport{}
	// Truncated frame, then stray unmarked bytes, then a full frame.
	truncated := MustEncodeMessage(mustMessage(t, TypeData, 0x01, 9, 9, 9))
	rt.queueFrame(truncated[:4])
	rt.rx = append(rt.rx, [2]int{0x55, 0}, [2]int{0xAA, 0})
	want := mustMessage(t, TypePoll, 0x10)
	rt.queueFrame(MustEncodeMessage(want))

	g := NewGate(rt)
	var got *Message
	overruns := 0
	for got == nil {
		msg, err := g.Receive()
		if errors.Is(err, ErrFrameOverrun) {
			overruns++
			continue
		}
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		got = msg
	}
	if !got.Equal(want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if overruns != 0 {
		t.Errorf("stray bytes inside an open frame are data, not overruns; got %d", overruns)
	}
}

// ============================================================
// Registry Tests
// ============================================================

func TestAddressSet(t *testing.T) {
	s := NewAddressSet(SeenAddressCapacity)
	if !s.Add(0x10) {
		t.Error("first Add should report insertion")
	}
	if s.Add(0x10) {
		t.Error("duplicate Add should be a no-op")
	}
	for a := uint8(0x20); s.Len() < SeenAddressCapacity; a++ {
		s.Add(a)
	}
	if s.Add(0xF0) {
		t.Error("Add past capacity should be a no-op")
	}
	if s.Contains(0xF0) {
		t.Error("address added past capacity is tracked")
	}
	if s.Len() != SeenAddressCapacity {
		t.Errorf("Len = %d", s.Len())
	}
	if addrs := s.Addresses(); addrs[0] != 0x10 {
		t.Errorf("Addresses not in insertion order: %v", addrs)
	}
}

func TestPendingQueue_RemoveFirstPreservesOrder(t *testing.T) {
	q := NewPendingQueue(PendingQueueCapacity)
	a1 := mustMessage(t, TypeData, 0x10, 1)
	b1 := mustMessage(t, TypeData, 0x20, 2)
	a2 := mustMessage(t, TypeData, 0x10, 3)
	b2 := mustMessage(t, TypeData, 0x20, 4)
	for _, m := range []*Message{a1, b1, a2, b2} {
		if err := q.Push(m); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	if got := q.RemoveFirstFor(0x20); got != b1 {
		t.Fatalf("RemoveFirstFor(0x20) = %+v, want b1", got)
	}
	remaining := q.Messages()
	if len(remaining) != 3 || remaining[0] != a1 || remaining[1] != a2 || remaining[2] != b2 {
		t.Errorf("remaining order wrong: %v", remaining)
	}
	if got := q.RemoveFirstFor(0x30); got != nil {
		t.Errorf("RemoveFirstFor(unknown) = %+v", got)
	}
}

func TestPendingQueue_Capacity(t *testing.T) {
	q := NewPendingQueue(PendingQueueCapacity)
	for i := 0; i < PendingQueueCapacity; i++ {
		if err := q.Push(mustMessage(t, TypeData, uint8(i))); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	if err := q.Push(mustMessage(t, TypeData, 0xFF)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != PendingQueueCapacity {
		t.Errorf("Len = %d", q.Len())
	}
}

// ============================================================
// Bridge Queue Tests
// ============================================================

func TestQueue_Overflow(t *testing.T) {
	q := NewQueue(BridgeQueueCapacity)
	for i := 0; i < BridgeQueueCapacity+1; i++ {
		err := q.TryPut(mustMessage(t, TypeData, uint8(i)))
		if i < BridgeQueueCapacity && err != nil {
			t.Fatalf("TryPut %d: %v", i, err)
		}
		if i == BridgeQueueCapacity && !errors.Is(err, ErrQueueFull) {
			t.Fatalf("TryPut %d: expected ErrQueueFull, got %v", i, err)
		}
	}
	if q.Len() != BridgeQueueCapacity {
		t.Fatalf("Len = %d", q.Len())
	}
	for i := 0; i < BridgeQueueCapacity; i++ {
		m, ok := q.TryGet()
		if !ok || m.Address != uint8(i) {
			t.Fatalf("TryGet %d = %+v, %v", i, m, ok)
		}
	}
	if _, ok := q.TryGet(); ok {
		t.Error("TryGet on empty queue should report no data")
	}
}

func TestBridge(t *testing.T) {
	b := NewBridge()
	if b.ToHost.Cap() != BridgeQueueCapacity || b.ToBus.Cap() != BridgeQueueCapacity {
		t.Errorf("capacities = %d/%d", b.ToHost.Cap(), b.ToBus.Cap())
	}
}

// ============================================================
// Relay Tests
// ============================================================

func newTestRelay() (*Relay, *captureTransmitter, *Queue) {
	tx := &captureTransmitter{}
	toHost := NewQueue(BridgeQueueCapacity)
	return NewRelay(tx, toHost, nil), tx, toHost
}

func TestRelay_PollSequence(t *testing.T) {
	r, tx, _ := newTestRelay()
	a := mustMessage(t, TypeData, 0x10, 0xAB)
	if err := r.EnqueueFromHost(a); err != nil {
		t.Fatalf("EnqueueFromHost: %v", err)
	}

	resp, err := r.HandlePoll(0x10)
	if err != nil || resp != a {
		t.Fatalf("first poll = %+v, %v; want queued message", resp, err)
	}
	if r.Pending().Len() != 0 {
		t.Errorf("pending Len = %d after answer", r.Pending().Len())
	}

	resp, err = r.HandlePoll(0x10)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if !resp.Equal(DefaultResponse(0x10)) || !Verify(resp) {
		t.Errorf("second poll = %+v, want default response", resp)
	}

	resp, err = r.HandlePoll(0x20)
	if resp != nil || err != nil {
		t.Errorf("unseen poll = %+v, %v; want no response", resp, err)
	}
	if len(tx.sent) != 2 {
		t.Errorf("transmitted %d frames, want 2", len(tx.sent))
	}

	c := r.Stats().Snapshot()
	if c.Polls != 3 || c.QueuedResponses != 1 || c.DefaultResponses != 1 || c.UnknownPolls != 1 {
		t.Errorf("unexpected counters %+v", c)
	}
}

func TestRelay_InsertionOrderPerAddress(t *testing.T) {
	r, _, _ := newTestRelay()
	b := mustMessage(t, TypeData, 0x10, 'B')
	c := mustMessage(t, TypeData, 0x10, 'C')
	r.EnqueueFromHost(b)
	r.EnqueueFromHost(c)

	first, _ := r.HandlePoll(0x10)
	second, _ := r.HandlePoll(0x10)
	if first != b || second != c {
		t.Errorf("got %+v then %+v, want B then C", first, second)
	}
}

func TestRelay_EnqueueFullStillMarksSeen(t *testing.T) {
	r, _, _ := newTestRelay()
	for i := 0; i < PendingQueueCapacity; i++ {
		if err := r.EnqueueFromHost(mustMessage(t, TypeData, 0x01)); err != nil {
			t.Fatalf("EnqueueFromHost %d: %v", i, err)
		}
	}
	err := r.EnqueueFromHost(mustMessage(t, TypeData, 0x02))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if !r.Seen().Contains(0x02) {
		t.Error("address of a dropped frame should still be seen")
	}
	if c := r.Stats().Snapshot(); c.PendingDrops != 1 || c.HostEnqueued != PendingQueueCapacity {
		t.Errorf("unexpected counters %+v", c)
	}
}

func TestRelay_AcceptFromHost(t *testing.T) {
	r, _, _ := newTestRelay()

	bad := mustMessage(t, TypeData, 0x10, 1)
	bad.CRC++
	if err := r.AcceptFromHost(bad); !errors.Is(err, ErrCRCMismatch) {
		t.Errorf("expected ErrCRCMismatch, got %v", err)
	}
	if err := r.AcceptFromHost(mustMessage(t, TypePoll, 0x10)); !errors.Is(err, ErrUnexpectedType) {
		t.Errorf("expected ErrUnexpectedType, got %v", err)
	}
	if r.Seen().Len() != 0 || r.Pending().Len() != 0 {
		t.Error("rejected host frames must not change relay state")
	}
	if err := r.AcceptFromHost(mustMessage(t, TypeData, 0x10, 1)); err != nil {
		t.Errorf("AcceptFromHost: %v", err)
	}
	if c := r.Stats().Snapshot(); c.HostFrames != 3 || c.HostRejected != 2 {
		t.Errorf("unexpected counters %+v", c)
	}
}

func TestRelay_HandleFrameForwardsValidFrames(t *testing.T) {
	r, tx, toHost := newTestRelay()
	r.EnqueueFromHost(mustMessage(t, TypeData, 0x10, 7))

	poll := mustMessage(t, TypePoll, 0x10)
	resp, err := r.HandleFrame(poll)
	if err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	if resp == nil || len(tx.sent) != 1 {
		t.Fatalf("poll was not answered")
	}
	if got, ok := toHost.TryGet(); !ok || got != poll {
		t.Errorf("poll frame not forwarded to host: %+v", got)
	}

	other := mustMessage(t, 0x21, 0x99, 1, 2)
	if resp, err := r.HandleFrame(other); resp != nil || err != nil {
		t.Errorf("non-poll frame: %+v, %v", resp, err)
	}
	if got, ok := toHost.TryGet(); !ok || got != other {
		t.Errorf("non-poll frame not forwarded: %+v", got)
	}

	unseen := mustMessage(t, TypePoll, 0x55)
	if resp, err := r.HandleFrame(unseen); resp != nil || err != nil {
		t.Errorf("unseen poll: %+v, %v", resp, err)
	}
	if _, ok := toHost.TryGet(); !ok {
		t.Error("unseen poll should still be forwarded")
	}
}

func TestRelay_HandleFrameDropsBadCRC(t *testing.T) {
	r, tx, toHost := newTestRelay()
	r.EnqueueFromHost(mustMessage(t, TypeData, 0x10, 7))

	poll := mustMessage(t, TypePoll, 0x10)
	poll.CRC ^= 0x8000
	resp, err := r.HandleFrame(poll)
	if !errors.Is(err, ErrCRCMismatch) {
		t.Fatalf("expected ErrCRCMismatch, got %v", err)
	}
	if resp != nil || len(tx.sent) != 0 {
		t.Error("bad frame triggered a response")
	}
	if toHost.Len() != 0 {
		t.Error("bad frame forwarded to host")
	}
	if r.Pending().Len() != 1 {
		t.Error("bad poll consumed a pending response")
	}
	if c := r.Stats().Snapshot(); c.CRCErrors != 1 || c.ValidFrames != 0 {
		t.Errorf("unexpected counters %+v", c)
	}
}

func TestRelay_HostQueueFull(t *testing.T) {
	tx := &captureTransmitter{}
	r := NewRelay(tx, NewQueue(1), nil)
	r.HandleFrame(mustMessage(t, 0x01, 0x01))
	_, err := r.HandleFrame(mustMessage(t, 0x01, 0x02))
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if c := r.Stats().Snapshot(); c.BusToHostDrops != 1 {
		t.Errorf("BusToHostDrops = %d", c.BusToHostDrops)
	}
}

func TestRelay_TransmitError(t *testing.T) {
	r, tx, toHost := newTestRelay()
	tx.err = errors.New("bus busy")
	r.EnqueueFromHost(mustMessage(t, TypeData, 0x10))
	_, err := r.HandleFrame(mustMessage(t, TypePoll, 0x10))
	if err == nil || !strings.Contains(err.Error(), "bus busy") {
		t.Errorf("expected transmit error, got %v", err)
	}
	if toHost.Len() != 1 {
		t.Error("poll should be forwarded even when the response fails")
	}
	if c := r.Stats().Snapshot(); c.TransmitErrors != 1 {
		t.Errorf("TransmitErrors = %d", c.TransmitErrors)
	}
}

// ============================================================
// Hex Debug Channel Tests
// ============================================================

func TestEncodeHexLine(t *testing.T) {
	line, err := EncodeHexLine(DefaultResponse(0x10))
	if err != nil {
		t.Fatalf("EncodeHexLine: %v", err)
	}
	if line != "6c100200fff9c0\n" {
		t.Errorf("line = %q", line)
	}
	if len(strings.TrimSuffix(line, "\n")) != 2*FrameSize(2) {
		t.Errorf("hex length should be twice the frame size")
	}
}

func TestDecodeHexLine(t *testing.T) {
	m, err := DecodeHexLine("6c100200fff9c0\r\n")
	if err != nil {
		t.Fatalf("DecodeHexLine: %v", err)
	}
	if !m.Equal(DefaultResponse(0x10)) {
		t.Errorf("got %+v", m)
	}

	tests := []struct {
		name string
		line string
		err  error
	}{
		{"not hex", "zz\n", ErrInvalidHex},
		{"odd digits", "6c1\n", ErrInvalidHex},
		{"truncated", "6c100200ff\n", ErrShortFrame},
		{"trailing bytes", "6c100200fff9c000\n", ErrInvalidHex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeHexLine(tt.line); !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatMessage(t *testing.T) {
	m := DefaultResponse(0x10)
	out := FormatMessage(m)
	if !strings.Contains(out, "type=6c (DATA)") || !strings.Contains(out, "data=[00, ff]") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(out, "valid") || strings.Contains(out, "invalid") {
		t.Errorf("valid message rendered as invalid: %q", out)
	}

	m.CRC = 0
	if out := FormatMessage(m); !strings.Contains(out, "invalid (should be f9c0)") {
		t.Errorf("invalid message output %q", out)
	}
	if out := FormatMessagePlain(m); strings.Contains(out, "\033[") {
		t.Errorf("plain output contains escapes: %q", out)
	}
}

func TestFormatMessageType(t *testing.T) {
	if FormatMessageType(TypePoll) != "POLL" || FormatMessageType(TypeData) != "DATA" {
		t.Error("reserved types misnamed")
	}
	if FormatMessageType(0x01) != "UNKNOWN" {
		t.Error("unreserved type should be UNKNOWN")
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_RecordReceive(t *testing.T) {
	s := NewStatistics()
	s.RecordReceive(nil, nil)
	s.RecordReceive(DefaultResponse(1), nil)
	s.RecordReceive(DefaultResponse(1), fmt.Errorf("wrapped: %w", ErrCRCMismatch))
	s.RecordReceive(nil, ErrFrameOverrun)
	s.RecordReceive(nil, ErrOversizeLength)

	c := s.Snapshot()
	if c.TotalFrames != 2 || c.ValidFrames != 1 || c.CRCErrors != 1 || c.Overruns != 1 || c.OversizeFrames != 1 {
		t.Errorf("unexpected counters %+v", c)
	}
	if c.Errors() != 3 {
		t.Errorf("Errors = %d", c.Errors())
	}
	if !strings.Contains(c.String(), "CRC Errors:") {
		t.Errorf("summary missing CRC line:\n%s", c.String())
	}

	s.Reset()
	if s.Snapshot().TotalFrames != 0 {
		t.Error("Reset did not clear counters")
	}
}
