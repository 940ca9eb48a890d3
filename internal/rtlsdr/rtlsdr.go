// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
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

// Package rtlsdr adapts librtlsdr, via cgo, to the device.Device contract
// the streaming core requires: an RTL2832/R820T-class dongle's native
// sample format is already unsigned 8-bit IQ, so SamplePacker for this
// variant is the identity transform.
package rtlsdr

// #cgo pkg-config: librtlsdr
//
// #include <stdint.h>
// #include <stdlib.h>
// #include <rtl-sdr.h>
//
// extern void rtlsdrRxCallback(unsigned char *buf, uint32_t len, void *ctx);
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/mattn/go-pointer"

	"hz.tools/sdrtcpd/device"
)

func rvToErr(rv C.int) error {
	if rv != 0 {
		return fmt.Errorf("rtlsdr: call failed with code %d", int32(rv))
	}
	return nil
}

// Tuner identifies the tuner chipset behind a dongle.
type Tuner uint8

// Tuner chipsets librtlsdr recognizes.
var (
	TunerUnknown Tuner = C.RTLSDR_TUNER_UNKNOWN
	TunerE4000   Tuner = C.RTLSDR_TUNER_E4000
	TunerFC0012  Tuner = C.RTLSDR_TUNER_FC0012
	TunerFC0013  Tuner = C.RTLSDR_TUNER_FC0013
	TunerFC2580  Tuner = C.RTLSDR_TUNER_FC2580
	TunerR820T   Tuner = C.RTLSDR_TUNER_R820T
	TunerR828D   Tuner = C.RTLSDR_TUNER_R828D
)

func (t Tuner) String() string {
	switch t {
	case TunerE4000:
		return "E4000"
	case TunerFC0012:
		return "FC0012"
	case TunerFC0013:
		return "FC0013"
	case TunerFC2580:
		return "FC2580"
	case TunerR820T:
		return "R820T"
	case TunerR828D:
		return "R828D"
	default:
		return "Unknown"
	}
}

// DeviceCount returns the number of rtlsdr devices visible to the
// library.
func DeviceCount() uint {
	return uint(C.rtlsdr_get_device_count())
}

// Device wraps one opened librtlsdr handle and implements
// device.Device.
type Device struct {
	handle     *C.rtlsdr_dev_t
	windowSize uint
	tuner      Tuner

	mu        sync.Mutex
	ifGain    map[uint16]int16
	registers [32]byte
}

// Open opens the rtlsdr device at index. windowSize controls how many
// bytes librtlsdr delivers per read-async callback; 0 selects the
// library's historical default.
func Open(index uint, windowSize uint) (*Device, error) {
	if windowSize == 0 {
		windowSize = 16 * 32 * 512
	}
	d := &Device{
		windowSize: windowSize,
		ifGain:     make(map[uint16]int16),
	}
	if err := rvToErr(C.rtlsdr_open(&d.handle, C.uint(index))); err != nil {
		return nil, err
	}
	d.tuner = Tuner(C.rtlsdr_get_tuner_type(d.handle))
	if err := rvToErr(C.rtlsdr_reset_buffer(d.handle)); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Magic implements device.Device.
func (d *Device) Magic() [4]byte { return [4]byte{'R', 'T', 'L', '0'} }

// TunerType implements device.Device.
func (d *Device) TunerType() uint32 { return uint32(d.tuner) }

// TunerGainCount implements device.Device.
func (d *Device) TunerGainCount() uint32 {
	return uint32(len(tunerGainTable(d.tuner)))
}

// NativeSampleFormat implements device.Device: librtlsdr always
// delivers unsigned 8-bit interleaved IQ.
func (d *Device) NativeSampleFormat() device.NativeFormat {
	return device.NativeFormatU8
}

// SetCenterFrequency implements device.Device.
func (d *Device) SetCenterFrequency(hz uint32) error {
	return rvToErr(C.rtlsdr_set_center_freq(d.handle, C.uint32_t(hz)))
}

// SetSampleRate implements device.Device.
func (d *Device) SetSampleRate(hz uint32) error {
	return rvToErr(C.rtlsdr_set_sample_rate(d.handle, C.uint32_t(hz)))
}

// SetGainMode implements device.Device.
func (d *Device) SetGainMode(mode device.GainMode) error {
	manual := C.int(1)
	if mode == device.GainModeAuto {
		manual = 0
	}
	return rvToErr(C.rtlsdr_set_tuner_gain_mode(d.handle, manual))
}

// SetGain implements device.Device: it snaps the requested tenths-of-a-dB
// value to the nearest entry in the tuner's hardcoded gain table.
func (d *Device) SetGain(tenthsDB int32) error {
	nearest := nearestGain(tunerGainTable(d.tuner), int(tenthsDB))
	return rvToErr(C.rtlsdr_set_tuner_gain(d.handle, C.int(nearest)))
}

// SetIFGain implements device.Device. Only the E4000 tuner has
// independently steppable IF stages; on other tuners this is a no-op
// that returns nil without a device call, matching
// "SET_GAIN and SET_AGC_MODE are accepted but implemented as no-ops in
// parts of the source."
func (d *Device) SetIFGain(stage uint16, gain int16) error {
	if d.tuner != TunerE4000 {
		return nil
	}
	d.mu.Lock()
	d.ifGain[stage] = gain
	d.mu.Unlock()
	return rvToErr(C.rtlsdr_set_tuner_if_gain(d.handle, C.int(stage), C.int(gain)))
}

// SetTunerGainByIndex implements device.Device.
func (d *Device) SetTunerGainByIndex(index uint32) error {
	table := tunerGainTable(d.tuner)
	if int(index) >= len(table) {
		return fmt.Errorf("rtlsdr: gain index %d out of range (have %d steps)", index, len(table))
	}
	return rvToErr(C.rtlsdr_set_tuner_gain(d.handle, C.int(table[index])))
}

// SetAGCMode implements device.Device.
func (d *Device) SetAGCMode(on bool) error {
	var v C.int
	if on {
		v = 1
	}
	return rvToErr(C.rtlsdr_set_agc_mode(d.handle, v))
}

// SetBiasTee implements device.Device.
func (d *Device) SetBiasTee(on bool) error {
	var v C.int
	if on {
		v = 1
	}
	return rvToErr(C.rtlsdr_set_bias_tee(d.handle, v))
}

// SetTunerBandwidth implements device.Device.
func (d *Device) SetTunerBandwidth(hz uint32) error {
	return rvToErr(C.rtlsdr_set_tuner_bandwidth(d.handle, C.uint32_t(hz)))
}

// WriteI2CTunerRegister implements device.Device. The register, mask
// and data are passed unchanged to rtlsdr_set_tuner_i2c_register; for
// registers below 32 the same masked write is also applied to the
// locally tracked register cache (used by RegisterReporter).
func (d *Device) WriteI2CTunerRegister(register uint16, mask uint8, data uint16) error {
	d.mu.Lock()
	if int(register) < len(d.registers) {
		cur := d.registers[register]
		newVal := (cur &^ mask) | (byte(data) & mask)
		d.registers[register] = newVal
	}
	d.mu.Unlock()
	return rvToErr(C.rtlsdr_set_tuner_i2c_register(
		d.handle, C.uint32_t(register), C.uint32_t(mask), C.uint32_t(data),
	))
}

// ReadTunerRegisters implements device.Device, returning the locally
// tracked register cache rather than a live I2C read: this is a
// diagnostics snapshot, not an authoritative device query.
func (d *Device) ReadTunerRegisters(n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, n)
	copy(out, d.registers[:])
	return out, nil
}

// Close implements device.Device.
func (d *Device) Close() error {
	return rvToErr(C.rtlsdr_close(d.handle))
}

type callbackContext struct {
	cb     device.SampleCallback
	cancel context.CancelFunc
}

//export rtlsdrRxCallback
func rtlsdrRxCallback(cBuf *C.char, cBufLen C.uint32_t, ptr unsafe.Pointer) {
	cc := pointer.Restore(ptr).(*callbackContext)
	buf := C.GoBytes(unsafe.Pointer(cBuf), C.int(cBufLen))
	cc.cb(buf)
}

// StartRx implements device.Device. It runs rtlsdr_read_async on a
// dedicated goroutine until ctx is cancelled or StopRx is called; each
// invocation of cb receives one raw interleaved-u8 sample block.
func (d *Device) StartRx(ctx context.Context, cb device.SampleCallback) error {
	if err := rvToErr(C.rtlsdr_reset_buffer(d.handle)); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	cc := &callbackContext{cb: cb, cancel: cancel}
	state := pointer.Save(cc)

	go func() {
		<-runCtx.Done()
		C.rtlsdr_cancel_async(d.handle)
	}()

	go func() {
		defer pointer.Unref(state)
		C.rtlsdr_read_async(
			d.handle,
			C.rtlsdr_read_async_cb_t(C.rtlsdrRxCallback),
			state, 0, C.uint32_t(d.windowSize),
		)
	}()

	return nil
}

// StopRx implements device.Device.
func (d *Device) StopRx() error {
	return rvToErr(C.rtlsdr_cancel_async(d.handle))
}
