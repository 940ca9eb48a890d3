// Package mock provides an in-memory device.Device double for testing
// the control and session packages without real hardware.
package mock

import (
	"context"
	"sync"

	"hz.tools/sdrtcpd/device"
)

// Call records one invocation against Device for assertions in tests.
type Call struct {
	Method string
	Args   []interface{}
}

// Device is a device.Device double that records every call and lets
// tests drive a synthetic sample stream through StartRx.
type Device struct {
	mu sync.Mutex

	magic          [4]byte
	tunerType      uint32
	tunerGainCount uint32
	nativeFormat   device.NativeFormat

	CenterFrequencyHz uint32
	SampleRateHz      uint32
	GainMode          device.GainMode
	GainTenthsDB      int32
	IFGain            map[uint16]int16
	TunerGainIndex    uint32
	AGCOn             bool
	BiasTeeOn         bool
	BandwidthHz       uint32
	Registers         []byte

	Calls []Call

	// StartRxErr, when set, is returned by StartRx instead of running
	// the callback.
	StartRxErr error

	streaming bool
	cb        device.SampleCallback
	ctx       context.Context
	cancel    context.CancelFunc
}

// New returns a Device double reporting the given handshake fields.
func New(magic [4]byte, tunerType, tunerGainCount uint32, nativeFormat device.NativeFormat) *Device {
	return &Device{
		magic:          magic,
		tunerType:      tunerType,
		tunerGainCount: tunerGainCount,
		nativeFormat:   nativeFormat,
		IFGain:         make(map[uint16]int16),
		Registers:      make([]byte, 32),
	}
}

func (d *Device) record(method string, args ...interface{}) {
	d.Calls = append(d.Calls, Call{Method: method, Args: args})
}

// Magic implements device.Device.
func (d *Device) Magic() [4]byte { return d.magic }

// TunerType implements device.Device.
func (d *Device) TunerType() uint32 { return d.tunerType }

// TunerGainCount implements device.Device.
func (d *Device) TunerGainCount() uint32 { return d.tunerGainCount }

// NativeSampleFormat implements device.Device.
func (d *Device) NativeSampleFormat() device.NativeFormat { return d.nativeFormat }

// SetCenterFrequency implements device.Device.
func (d *Device) SetCenterFrequency(hz uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CenterFrequencyHz = hz
	d.record("SetCenterFrequency", hz)
	return nil
}

// SetSampleRate implements device.Device.
func (d *Device) SetSampleRate(hz uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SampleRateHz = hz
	d.record("SetSampleRate", hz)
	return nil
}

// SetGainMode implements device.Device.
func (d *Device) SetGainMode(mode device.GainMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.GainMode = mode
	d.record("SetGainMode", mode)
	return nil
}

// SetGain implements device.Device.
func (d *Device) SetGain(tenthsDB int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.GainTenthsDB = tenthsDB
	d.record("SetGain", tenthsDB)
	return nil
}

// SetIFGain implements device.Device.
func (d *Device) SetIFGain(stage uint16, gain int16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.IFGain[stage] = gain
	d.record("SetIFGain", stage, gain)
	return nil
}

// SetTunerGainByIndex implements device.Device.
func (d *Device) SetTunerGainByIndex(index uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.TunerGainIndex = index
	d.record("SetTunerGainByIndex", index)
	return nil
}

// SetAGCMode implements device.Device.
func (d *Device) SetAGCMode(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AGCOn = on
	d.record("SetAGCMode", on)
	return nil
}

// SetBiasTee implements device.Device.
func (d *Device) SetBiasTee(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.BiasTeeOn = on
	d.record("SetBiasTee", on)
	return nil
}

// SetTunerBandwidth implements device.Device.
func (d *Device) SetTunerBandwidth(hz uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.BandwidthHz = hz
	d.record("SetTunerBandwidth", hz)
	return nil
}

// WriteI2CTunerRegister implements device.Device.
func (d *Device) WriteI2CTunerRegister(register uint16, mask uint8, data uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("WriteI2CTunerRegister", register, mask, data)
	if int(register) < len(d.Registers) {
		d.Registers[register] = byte(data) & mask
	}
	return nil
}

// ReadTunerRegisters implements device.Device.
func (d *Device) ReadTunerRegisters(n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, n)
	copy(out, d.Registers)
	return out, nil
}

// StartRx implements device.Device. It stores cb; tests drive it with
// Emit rather than a real hardware thread.
func (d *Device) StartRx(ctx context.Context, cb device.SampleCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StartRxErr != nil {
		return d.StartRxErr
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.cb = cb
	d.streaming = true
	d.record("StartRx")
	return nil
}

// StopRx implements device.Device.
func (d *Device) StopRx() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streaming = false
	if d.cancel != nil {
		d.cancel()
	}
	d.record("StopRx")
	return nil
}

// Close implements device.Device.
func (d *Device) Close() error {
	d.record("Close")
	return nil
}

// Emit delivers one raw sample block to the callback registered by
// StartRx, as the hardware driver's thread would. It is a no-op if
// StartRx has not been called or StopRx has already run.
func (d *Device) Emit(raw []byte) {
	d.mu.Lock()
	cb := d.cb
	streaming := d.streaming
	d.mu.Unlock()
	if streaming && cb != nil {
		cb(raw)
	}
}

// Streaming reports whether StartRx has run without a matching StopRx.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}
