// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2022
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package airspy adapts libairspyhf, via cgo, to the device.Device
// contract the streaming core requires. The Airspy HF's native samples
// are interleaved float32 IQ pairs; pack.Normalize converts them to the
// canonical 16-bit IQ every Packer consumes before any wire packing
// happens.
package airspy

// #cgo pkg-config: libairspyhf
//
// #include <stdint.h>
// #include <airspyhf.h>
//
// extern int airspyRxCallback(airspyhf_transfer_t *transfer);
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/mattn/go-pointer"

	"hz.tools/sdrtcpd/device"
	"hz.tools/sdrtcpd/proto"
)

// ErrNotSupported is returned by the device.Device methods that have no
// Airspy HF equivalent: the HF has no tuner I2C bus and no bias-tee.
var ErrNotSupported = fmt.Errorf("airspy: not supported on the Airspy HF")

// Device wraps one opened libairspyhf handle and implements
// device.Device.
type Device struct {
	handle *C.airspyhf_device_t

	mu       sync.Mutex
	attStep  uint8
	ampOn    bool
	bitWidth uint8
}

// Open opens the first Airspy HF the library finds attached.
func Open() (*Device, error) {
	var dev *C.airspyhf_device_t
	if C.airspyhf_open(&dev) != C.AIRSPYHF_SUCCESS {
		return nil, fmt.Errorf("airspy: failed to open device")
	}
	return &Device{handle: dev}, nil
}

// OpenBySerial opens the Airspy HF with the given serial number.
func OpenBySerial(serial uint64) (*Device, error) {
	var dev *C.airspyhf_device_t
	if C.airspyhf_open_sn(&dev, C.uint64_t(serial)) != C.AIRSPYHF_SUCCESS {
		return nil, fmt.Errorf("airspy: failed to open device sn=%x", serial)
	}
	return &Device{handle: dev}, nil
}

// Magic implements device.Device.
func (d *Device) Magic() [4]byte { return [4]byte{'A', 'S', 'P', 'Y'} }

// SetBitWidth records the sample bit width (16, 8 or 4) this server was
// configured to stream, so the handshake's TunerType overload carries
// it to the client. It must be called before the session listener
// starts accepting connections.
func (d *Device) SetBitWidth(bitWidth int) {
	d.mu.Lock()
	d.bitWidth = uint8(bitWidth)
	d.mu.Unlock()
}

// TunerType implements device.Device. The Airspy HF has no RTL-style
// tuner chipset to report; the low byte is overloaded with the sample
// bit width per the Airspy handshake extension.
func (d *Device) TunerType() uint32 {
	d.mu.Lock()
	bitWidth := d.bitWidth
	d.mu.Unlock()
	return proto.AirspyTunerType(0, bitWidth)
}

// TunerGainCount implements device.Device.
func (d *Device) TunerGainCount() uint32 { return attenuatorStepCount }

// NativeSampleFormat implements device.Device: libairspyhf always
// delivers interleaved float32 IQ.
func (d *Device) NativeSampleFormat() device.NativeFormat {
	return device.NativeFormatC64
}

// SetCenterFrequency implements device.Device.
func (d *Device) SetCenterFrequency(hz uint32) error {
	if C.airspyhf_set_freq(d.handle, C.uint32_t(hz)) != C.AIRSPYHF_SUCCESS {
		return fmt.Errorf("airspy: set_freq failed")
	}
	return nil
}

// SetSampleRate implements device.Device.
func (d *Device) SetSampleRate(hz uint32) error {
	if C.airspyhf_set_samplerate(d.handle, C.uint32_t(hz)) != C.AIRSPYHF_SUCCESS {
		return fmt.Errorf("airspy: set_samplerate failed")
	}
	return nil
}

// SetGainMode implements device.Device by toggling the HF AGC.
func (d *Device) SetGainMode(mode device.GainMode) error {
	var v C.uint8_t
	if mode == device.GainModeAuto {
		v = 1
	}
	if C.airspyhf_set_hf_agc(d.handle, v) != C.AIRSPYHF_SUCCESS {
		return fmt.Errorf("airspy: set_hf_agc failed")
	}
	return nil
}

// SetGain implements device.Device: tenthsDB is converted to whole dB
// and snapped to the nearest 6 dB attenuator step.
func (d *Device) SetGain(tenthsDB int32) error {
	step := nearestAttenuatorStep(int(tenthsDB / 10))
	d.mu.Lock()
	d.attStep = step
	d.mu.Unlock()
	if C.airspyhf_set_hf_att(d.handle, C.uint8_t(step)) != C.AIRSPYHF_SUCCESS {
		return fmt.Errorf("airspy: set_hf_att failed")
	}
	return nil
}

// SetIFGain implements device.Device. The Airspy HF has one extra
// switched stage, the HF LNA; it is addressed as stage 0 and any other
// stage number is a no-op.
func (d *Device) SetIFGain(stage uint16, gain int16) error {
	if stage != 0 {
		return nil
	}
	on := gain > 0
	var v C.uint8_t
	if on {
		v = 1
	}
	d.mu.Lock()
	d.ampOn = on
	d.mu.Unlock()
	if C.airspyhf_set_hf_lna(d.handle, v) != C.AIRSPYHF_SUCCESS {
		return fmt.Errorf("airspy: set_hf_lna failed")
	}
	return nil
}

// SetTunerGainByIndex implements device.Device, applying the attenuator
// step directly.
func (d *Device) SetTunerGainByIndex(index uint32) error {
	if index >= attenuatorStepCount {
		return fmt.Errorf("airspy: gain index %d out of range (have %d steps)", index, attenuatorStepCount)
	}
	d.mu.Lock()
	d.attStep = uint8(index)
	d.mu.Unlock()
	if C.airspyhf_set_hf_att(d.handle, C.uint8_t(index)) != C.AIRSPYHF_SUCCESS {
		return fmt.Errorf("airspy: set_hf_att failed")
	}
	return nil
}

// SetAGCMode implements device.Device, mirrored onto the same hf_agc
// knob SetGainMode uses: rtl_tcp clients expect SET_AGC_MODE to be
// accepted even on hardware with a single AGC control.
func (d *Device) SetAGCMode(on bool) error {
	var v C.uint8_t
	if on {
		v = 1
	}
	if C.airspyhf_set_hf_agc(d.handle, v) != C.AIRSPYHF_SUCCESS {
		return fmt.Errorf("airspy: set_hf_agc failed")
	}
	return nil
}

// SetBiasTee implements device.Device. The Airspy HF has no bias-tee.
func (d *Device) SetBiasTee(on bool) error {
	return ErrNotSupported
}

// SetTunerBandwidth implements device.Device. The Airspy HF has no
// tunable filter bandwidth exposed through libairspyhf.
func (d *Device) SetTunerBandwidth(hz uint32) error {
	return ErrNotSupported
}

// WriteI2CTunerRegister implements device.Device. The Airspy HF has no
// tuner I2C bus to address.
func (d *Device) WriteI2CTunerRegister(register uint16, mask uint8, data uint16) error {
	return ErrNotSupported
}

// ReadTunerRegisters implements device.Device, returning a zeroed
// snapshot: the register reporter still gets a well-formed frame on
// hardware with nothing to report.
func (d *Device) ReadTunerRegisters(n int) ([]byte, error) {
	return make([]byte, n), nil
}

// Close implements device.Device.
func (d *Device) Close() error {
	if C.airspyhf_close(d.handle) != C.AIRSPYHF_SUCCESS {
		return fmt.Errorf("airspy: close failed")
	}
	return nil
}

type callbackContext struct {
	cb  device.SampleCallback
	ctx context.Context
}

// airspyhf_complex_float_t is 8 bytes: two float32s, real then
// imaginary.
const bytesPerSample = 8

//export airspyRxCallback
func airspyRxCallback(transfer *C.airspyhf_transfer_t) C.int {
	cc := pointer.Restore(transfer.ctx).(*callbackContext)

	if err := cc.ctx.Err(); err != nil {
		return -1
	}

	n := int(transfer.sample_count) * bytesPerSample
	buf := C.GoBytes(unsafe.Pointer(transfer.samples), C.int(n))
	cc.cb(buf)

	return 0
}

// StartRx implements device.Device. It runs the libairspyhf streaming
// callback until ctx is cancelled or StopRx is called; each invocation
// of cb receives one raw interleaved-float32 sample block.
func (d *Device) StartRx(ctx context.Context, cb device.SampleCallback) error {
	if C.airspyhf_is_streaming(d.handle) == 1 {
		if C.airspyhf_stop(d.handle) != C.AIRSPYHF_SUCCESS {
			return fmt.Errorf("airspy: failed to stop an existing stream")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	cc := &callbackContext{cb: cb, ctx: runCtx}
	state := pointer.Save(cc)

	if C.airspyhf_start(
		d.handle,
		C.airspyhf_sample_block_cb_fn(C.airspyRxCallback),
		state,
	) != C.AIRSPYHF_SUCCESS {
		cancel()
		pointer.Unref(state)
		return fmt.Errorf("airspy: airspyhf_start failed")
	}

	go func() {
		<-runCtx.Done()
		C.airspyhf_stop(d.handle)
		pointer.Unref(state)
	}()

	return nil
}

// StopRx implements device.Device.
func (d *Device) StopRx() error {
	if C.airspyhf_stop(d.handle) != C.AIRSPYHF_SUCCESS {
		return fmt.Errorf("airspy: airspyhf_stop failed")
	}
	return nil
}
