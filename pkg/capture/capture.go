// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records com2bus frames to a CBOR stream and reads them
// back for replay.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/com2gate/pkg/com2bus"
)

// Direction of a recorded frame
type Direction uint8

const (
	// FromBus is a frame received on the bus.
	FromBus Direction = iota
	// ToBus is a frame transmitted on the bus.
	ToBus
	// FromHost is a frame received from the host link.
	FromHost
)

// String returns a short name for the direction.
func (d Direction) String() string {
	switch d {
	case FromBus:
		return "bus>"
	case ToBus:
		return "bus<"
	case FromHost:
		return "host>"
	default:
		return fmt.Sprintf("dir(%d)", uint8(d))
	}
}

// Record is one captured frame.
type Record struct {
	Time      time.Time `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Frame     []byte    `cbor:"3,keyasint"`
	Valid     bool      `cbor:"4,keyasint"`
}

// NewRecord captures an encoded message. m must not carry more than
// com2bus.MaxDataLength bytes of data.
func NewRecord(dir Direction, m *com2bus.Message) Record {
	return Record{
		Time:      time.Now(),
		Direction: dir,
		Frame:     com2bus.MustEncodeMessage(m),
		Valid:     com2bus.Verify(m),
	}
}

// Message decodes the recorded frame.
func (r Record) Message() (*com2bus.Message, error) {
	return com2bus.DecodeMessage(r.Frame)
}

// Writer appends records to a CBOR stream. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

// encMode keeps sub-second timestamps.
var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// NewWriter returns a Writer that encodes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

// Write appends one record.
func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	return nil
}

// WriteMessage captures m with the current time.
func (w *Writer) WriteMessage(dir Direction, m *com2bus.Message) error {
	return w.Write(NewRecord(dir, m))
}

// Reader reads records from a CBOR stream.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader returns a Reader that decodes from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Read returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Read() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return rec, nil
}

// ReadAll returns every remaining record.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
