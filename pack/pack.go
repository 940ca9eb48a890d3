// Package pack converts raw device sample blocks into the on-wire byte
// layout expected by an rtl_tcp client: IQ16 (16-bit passthrough), IQ8
// (8-bit, derived from a signed 16-bit source) and IQ4 (4-bit packed
// nibbles, derived from a signed 16-bit source).
package pack

import (
	"encoding/binary"
	"fmt"
	"math"

	"hz.tools/sdrtcpd/device"
)

// Format selects the on-wire sample width.
type Format int

const (
	// FormatIQ16 is 16-bit signed IQ, passed through unchanged.
	FormatIQ16 Format = iota
	// FormatIQ8 is 8-bit unsigned IQ, derived from a 16-bit source.
	FormatIQ8
	// FormatIQ4 is 4-bit packed IQ (one byte per IQ pair), derived from
	// a 16-bit source.
	FormatIQ4
)

func (f Format) String() string {
	switch f {
	case FormatIQ16:
		return "IQ16"
	case FormatIQ8:
		return "IQ8"
	case FormatIQ4:
		return "IQ4"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// BytesPerPair returns the on-wire byte count of a single IQ pair for f.
func (f Format) BytesPerPair() int {
	switch f {
	case FormatIQ16:
		return 4
	case FormatIQ8:
		return 2
	case FormatIQ4:
		return 1
	default:
		return 0
	}
}

// ErrShortInput is returned by the IQ8 packer when a raw block has an odd
// length and by the IQ4 packer when it isn't a whole number of 16-bit IQ
// pairs. The IQ16 packer copies any input unchanged.
var ErrShortInput = fmt.Errorf("pack: input length is not a multiple of 4 bytes (one I and one Q, 16 bits each)")

// Packer turns a raw block of interleaved, little-endian signed 16-bit IQ
// samples into the wire bytes for one SampleFormat. Implementations
// allocate and return a fresh buffer; the input is never retained.
type Packer interface {
	// Pack converts raw into a freshly allocated on-wire buffer.
	Pack(raw []byte) ([]byte, error)
	// Format reports which wire format this packer produces.
	Format() Format
}

// New returns the Packer for f.
func New(f Format) (Packer, error) {
	switch f {
	case FormatIQ16:
		return iq16Packer{}, nil
	case FormatIQ8:
		return iq8Packer{}, nil
	case FormatIQ4:
		return iq4Packer{}, nil
	default:
		return nil, fmt.Errorf("pack: unknown format %d", int(f))
	}
}

// ErrShortNativeInput is returned by Normalize when raw isn't a whole
// number of samples for the given native format.
var ErrShortNativeInput = fmt.Errorf("pack: native input length does not hold a whole number of samples")

// Normalize converts a raw device sample block, delivered in native,
// into the canonical interleaved little-endian signed 16-bit IQ bytes
// every Packer consumes. RTL-SDR delivers NativeFormatU8 already;
// Airspy HF delivers NativeFormatC64. producerCallback uses it for every
// native format except NativeFormatU8, whose blocks already match the
// rtl_tcp wire layout and are pushed unchanged.
func Normalize(native device.NativeFormat, raw []byte) ([]byte, error) {
	switch native {
	case device.NativeFormatI16:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case device.NativeFormatU8:
		out := make([]byte, len(raw)*2)
		for i, b := range raw {
			s := int16((int32(b) << 8) - 32768)
			binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
		}
		return out, nil
	case device.NativeFormatC64:
		if len(raw)%8 != 0 {
			return nil, ErrShortNativeInput
		}
		n := len(raw) / 8
		out := make([]byte, n*4)
		for i := 0; i < n; i++ {
			re := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*8 : i*8+4]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*8+4 : i*8+8]))
			iSample := int16(re * math.MaxInt16)
			qSample := int16(im * math.MaxInt16)
			binary.LittleEndian.PutUint16(out[i*4:i*4+2], uint16(iSample))
			binary.LittleEndian.PutUint16(out[i*4+2:i*4+4], uint16(qSample))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("pack: unknown native format %v", native)
	}
}

type iq16Packer struct{}

func (iq16Packer) Format() Format { return FormatIQ16 }

// Pack copies the input unchanged: IQ16 is the wire format already.
func (iq16Packer) Pack(raw []byte) ([]byte, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

type iq8Packer struct{}

func (iq8Packer) Format() Format { return FormatIQ8 }

// Pack halves a 16-bit IQ stream to 8-bit. Each 16-bit sample s becomes
// uint8((s>>4)+2048)>>4: the signed sample is shifted into the unsigned
// 12-bit range, the low byte of that value is kept and shifted right by
// four, so each output byte holds bits 4..7 of the 12-bit value.
func (iq8Packer) Pack(raw []byte) ([]byte, error) {
	if len(raw)%2 != 0 {
		return nil, ErrShortInput
	}
	n := len(raw) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		out[i] = iq8FromI16(s)
	}
	return out, nil
}

func iq8FromI16(s int16) byte {
	shifted := int32(s) >> 4
	unsigned12 := uint8(shifted + 2048)
	return unsigned12 >> 4
}

type iq4Packer struct{}

func (iq4Packer) Format() Format { return FormatIQ4 }

// Pack packs a 16-bit IQ stream down to one byte per IQ pair: the high
// nibble carries Q, the low nibble carries I.
func (iq4Packer) Pack(raw []byte) ([]byte, error) {
	if len(raw)%4 != 0 {
		return nil, ErrShortInput
	}
	n := len(raw) / 4
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		iSample := int16(binary.LittleEndian.Uint16(raw[i*4 : i*4+2]))
		qSample := int16(binary.LittleEndian.Uint16(raw[i*4+2 : i*4+4]))
		iByte := uint8(int32(iSample)/64 + 127)
		qByte := uint8(int32(qSample)/64 + 127)
		out[i] = (qByte & 0xF0) | ((iByte >> 4) & 0x0F)
	}
	return out, nil
}
