package control

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hz.tools/sdrtcpd/device"
	"hz.tools/sdrtcpd/device/mock"
	"hz.tools/sdrtcpd/proto"
)

func newController() (*Controller, *mock.Device) {
	dev := mock.New(proto.MagicRTLSDR, 5, 29, device.NativeFormatU8)
	return New(dev, nil), dev
}

func TestTuneCommandScenario(t *testing.T) {
	c, dev := newController()

	// cmd=1, param = 100_000_000.
	c.Apply(proto.Request{Command: proto.CommandSetFrequency, Parameter: 100_000_000})
	assert.Equal(t, uint32(100_000_000), dev.CenterFrequencyHz)
}

func TestPPMThenRetuneScenario(t *testing.T) {
	c, dev := newController()

	c.Apply(proto.Request{Command: proto.CommandSetFrequency, Parameter: 100_000_000})
	c.Apply(proto.Request{Command: proto.CommandSetFrequencyCorrection, Parameter: 10})

	assert.Equal(t, uint32(100_001_000), dev.CenterFrequencyHz)
}

func TestTunedFrequencyRounds(t *testing.T) {
	assert.Equal(t, uint32(100_001_000), TunedFrequency(100_000_000, 10))
	assert.Equal(t, uint32(100_000_000), TunedFrequency(100_000_000, 0))
}

func TestSampleRateLegacyRemap(t *testing.T) {
	c, dev := newController()
	c.Apply(proto.Request{Command: proto.CommandSetSampleRate, Parameter: LegacySampleRate})
	assert.Equal(t, uint32(CurrentSampleRate), dev.SampleRateHz)
}

func TestSampleRatePassthrough(t *testing.T) {
	c, dev := newController()
	c.Apply(proto.Request{Command: proto.CommandSetSampleRate, Parameter: 2_400_000})
	assert.Equal(t, uint32(2_400_000), dev.SampleRateHz)
}

func TestRawI2CWriteScenario(t *testing.T) {
	c, dev := newController()

	// param 0x0130A055 -> register=0x013, mask=0x0A, data=0x055.
	c.Apply(proto.Request{Command: proto.CommandSetI2CTunerRegister, Parameter: 0x0130A055})

	assert.Equal(t, []Call1{{Register: 0x013, Mask: 0x0A, Data: 0x055}}, i2cCallsOf(dev))
}

// Call1 is a minimal projection of mock.Call for the I2C write assertion.
type Call1 struct {
	Register uint16
	Mask     uint8
	Data     uint16
}

func i2cCallsOf(dev *mock.Device) []Call1 {
	var out []Call1
	for _, call := range dev.Calls {
		if call.Method != "WriteI2CTunerRegister" {
			continue
		}
		out = append(out, Call1{
			Register: call.Args[0].(uint16),
			Mask:     call.Args[1].(uint8),
			Data:     call.Args[2].(uint16),
		})
	}
	return out
}

func TestGainModeTranslation(t *testing.T) {
	c, dev := newController()
	c.Apply(proto.Request{Command: proto.CommandSetGainMode, Parameter: 1})
	assert.Equal(t, device.GainModeManual, dev.GainMode)

	c.Apply(proto.Request{Command: proto.CommandSetGainMode, Parameter: 0})
	assert.Equal(t, device.GainModeAuto, dev.GainMode)
}

func TestIFStageSplitsParameter(t *testing.T) {
	c, dev := newController()
	// stage = low 16 bits, gain = high 16 bits.
	c.Apply(proto.Request{Command: proto.CommandSetIFStage, Parameter: (uint32(30) << 16) | 2})
	assert.Equal(t, int16(30), dev.IFGain[2])
}

func TestBiasTeeToggle(t *testing.T) {
	c, dev := newController()
	c.Apply(proto.Request{Command: proto.CommandSetBiasTee, Parameter: 1})
	assert.True(t, dev.BiasTeeOn)
	assert.True(t, c.State().BiasTee)

	c.Apply(proto.Request{Command: proto.CommandSetBiasTee, Parameter: 0})
	assert.False(t, dev.BiasTeeOn)
}

func TestOptionalCommandsAreNoOps(t *testing.T) {
	c, dev := newController()
	c.Apply(proto.Request{Command: proto.CommandSetTestMode, Parameter: 1})
	c.Apply(proto.Request{Command: proto.CommandUDPEstablish, Parameter: 0})
	assert.Empty(t, dev.Calls)
}

func TestUnrecognizedCommandDoesNotPanic(t *testing.T) {
	c, _ := newController()
	assert.NotPanics(t, func() {
		c.Apply(proto.Request{Command: proto.Command(0xEE), Parameter: 0})
	})
}
