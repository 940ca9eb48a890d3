// Package device declares the abstract capability the streaming core
// requires of an SDR USB receiver. The USB driver, tuner register
// tables, and PLL math behind an implementation are out of scope for
// this repository; internal/rtlsdr and internal/airspy provide the two
// concrete adapters.
package device

import "context"

// SampleCallback receives one block of raw device samples per hardware
// callback invocation. Implementations of Device call it from the
// driver's own callback thread; it must never block.
type SampleCallback func(raw []byte)

// GainMode selects between the device's automatic gain control and a
// manually commanded gain value.
type GainMode int

const (
	// GainModeAuto lets the device's own AGC choose gain.
	GainModeAuto GainMode = iota
	// GainModeManual applies an explicit gain value from the client.
	GainModeManual
)

// Device is the abstract capability a StreamSession and
// DeviceController require of the underlying hardware. The concrete
// USB transport, PLL math, and gain tables behind an implementation are
// not part of this contract.
//
// Implementations must internally synchronize calls made from the
// command goroutine against the producer callback invoked concurrently
// by StartRx; the core never takes a lock across a call into Device.
type Device interface {
	// Magic identifies the device family for the DongleInfo handshake
	// ("RTL0" or "ASPY").
	Magic() [4]byte
	// TunerType is the wire tuner-type value sent in DongleInfo.
	TunerType() uint32
	// TunerGainCount is the wire tuner-gain-count value sent in
	// DongleInfo.
	TunerGainCount() uint32
	// NativeSampleFormat reports the bit width the producer reads
	// samples in before SamplePacker transforms them for the wire.
	NativeSampleFormat() NativeFormat

	// SetCenterFrequency re-tunes to the given frequency in Hz, already
	// adjusted for ppm by the caller.
	SetCenterFrequency(hz uint32) error
	// SetSampleRate applies a sample rate in Hz.
	SetSampleRate(hz uint32) error
	// SetGainMode switches between automatic and manual gain.
	SetGainMode(mode GainMode) error
	// SetGain applies a manual gain in tenths of a dB.
	SetGain(tenthsDB int32) error
	// SetIFGain applies gain to one IF stage; stage numbering and range
	// are device-specific.
	SetIFGain(stage uint16, gain int16) error
	// SetTunerGainByIndex selects a gain-table entry by index.
	SetTunerGainByIndex(index uint32) error
	// SetAGCMode switches the demodulator AGC on or off.
	SetAGCMode(on bool) error
	// SetBiasTee enables or disables bias-T power on the antenna input.
	SetBiasTee(on bool) error
	// SetTunerBandwidth applies a tuner filter bandwidth in Hz.
	SetTunerBandwidth(hz uint32) error
	// WriteI2CTunerRegister performs a raw masked write to one tuner
	// I2C register.
	WriteI2CTunerRegister(register uint16, mask uint8, data uint16) error
	// ReadTunerRegisters returns a snapshot of the first n tuner I2C
	// registers, most commonly used for diagnostics.
	ReadTunerRegisters(n int) ([]byte, error)

	// StartRx begins streaming; cb is invoked once per hardware sample
	// block until StopRx is called or the context is cancelled.
	StartRx(ctx context.Context, cb SampleCallback) error
	// StopRx ends streaming started by StartRx.
	StopRx() error

	// Close releases the device.
	Close() error
}

// NativeFormat identifies the bit width native samples arrive in from
// the hardware callback, before packing.
type NativeFormat int

const (
	// NativeFormatI16 is interleaved, little-endian signed 16-bit IQ.
	NativeFormatI16 NativeFormat = iota
	// NativeFormatU8 is interleaved unsigned 8-bit IQ, already in the
	// rtl_tcp wire layout (RTL-SDR's native format).
	NativeFormatU8
	// NativeFormatC64 is interleaved 32-bit float IQ pairs (Airspy HF's
	// native format, as delivered by libairspyhf).
	NativeFormatC64
)

func (f NativeFormat) String() string {
	switch f {
	case NativeFormatI16:
		return "I16"
	case NativeFormatU8:
		return "U8"
	case NativeFormatC64:
		return "C64"
	default:
		return "Unknown"
	}
}
