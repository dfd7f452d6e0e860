// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

// ParityDecoder decodes a termios PARMRK byte stream. With PARMRK set the
// kernel delivers a byte that failed the parity check as 0xFF 0x00 X and a
// clean 0xFF as 0xFF 0xFF; every other byte arrives as-is.
type ParityDecoder struct {
	state int
	out   []ParitySymbol
}

// ParitySymbol is a received byte and whether it failed the parity check.
type ParitySymbol struct {
	Byte        byte
	ParityError bool
}

const (
	parmrkIdle = iota
	parmrkEscape
	parmrkError
)

// Write decodes raw bytes read from the port.
func (d *ParityDecoder) Write(raw []byte) {
	for _, b := range raw {
		switch d.state {
		case parmrkIdle:
			if b == 0xFF {
				d.state = parmrkEscape
				continue
			}
			d.out = append(d.out, ParitySymbol{Byte: b})
		case parmrkEscape:
			switch b {
			case 0xFF:
				d.out = append(d.out, ParitySymbol{Byte: 0xFF})
				d.state = parmrkIdle
			case 0x00:
				d.state = parmrkError
			default:
				// Lone 0xFF (PARMRK off or ISTRIP on); keep both bytes.
				d.out = append(d.out, ParitySymbol{Byte: 0xFF}, ParitySymbol{Byte: b})
				d.state = parmrkIdle
			}
		case parmrkError:
			d.out = append(d.out, ParitySymbol{Byte: b, ParityError: true})
			d.state = parmrkIdle
		}
	}
}

// Next returns the next decoded symbol. ok is false when none is ready.
func (d *ParityDecoder) Next() (s ParitySymbol, ok bool) {
	if len(d.out) == 0 {
		return ParitySymbol{}, false
	}
	s = d.out[0]
	d.out = d.out[1:]
	return s, true
}

// Pending returns the number of decoded symbols not yet returned by Next.
func (d *ParityDecoder) Pending() int {
	return len(d.out)
}
