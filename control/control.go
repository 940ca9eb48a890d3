// Package control applies decoded rtl_tcp command frames to a
// device.Device, translating wire parameters (ppm, sample-rate table,
// gain mode, raw I2C) into device calls.
package control

import (
	"math"
	"sync"

	"github.com/charmbracelet/log"

	"hz.tools/sdrtcpd/device"
	"hz.tools/sdrtcpd/proto"
)

// LegacySampleRate is the historical sample rate constant some clients
// still send; the controller silently remaps it to CurrentSampleRate.
const LegacySampleRate = 2_048_000

// CurrentSampleRate is what LegacySampleRate is remapped to.
const CurrentSampleRate = 4_096_000

// State is the logical device state tracked by a Controller, independent
// of whatever the hardware actually holds.
type State struct {
	CenterFrequencyHz uint32
	PPM               int32
	SampleFormat      string
	BiasTee           bool
}

// Controller applies decoded commands to a device.Device. It is safe for
// concurrent use; the command goroutine is its only expected caller, but
// StreamSession may read State concurrently with Apply.
type Controller struct {
	dev device.Device
	log *log.Logger

	mu    sync.Mutex
	state State
}

// New returns a Controller for dev. logger may be nil, in which case a
// controller-scoped logger is derived from log.Default().
func New(dev device.Device, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		dev: dev,
		log: logger.With("component", "control"),
	}
}

// State returns a snapshot of the tracked device state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TunedFrequency rounds centerFreqHz adjusted by ppm the way the
// hardware is actually programmed: round(center_freq_hz * (1 +
// ppm/1e6)).
func TunedFrequency(centerFreqHz uint32, ppm int32) uint32 {
	adjusted := float64(centerFreqHz) * (1.0 + float64(ppm)/1e6)
	return uint32(math.Round(adjusted))
}

// Apply dispatches one decoded request against the device. Command
// errors are logged with the command code and parameter; they are
// always Recoverable and never returned to the caller, matching "Errors
// are logged... they never tear down the session."
func (c *Controller) Apply(req proto.Request) {
	switch req.Command {
	case proto.CommandSetFrequency:
		c.setFrequency(req.Parameter)
	case proto.CommandSetFrequencyCorrection:
		c.setFrequencyCorrection(req.Parameter)
	case proto.CommandSetSampleRate:
		c.setSampleRate(req.Parameter)
	case proto.CommandSetGainMode:
		c.setGainMode(req.Parameter)
	case proto.CommandSetGain:
		c.logErr(req, c.dev.SetGain(int32(req.Parameter)))
	case proto.CommandSetIFStage:
		c.setIFStage(req.Parameter)
	case proto.CommandSetAGCMode:
		c.logErr(req, c.dev.SetAGCMode(req.Parameter != 0))
	case proto.CommandSetTunerGainByIndex:
		c.logErr(req, c.dev.SetTunerGainByIndex(req.Parameter))
	case proto.CommandSetBiasTee:
		c.setBiasTee(req.Parameter)
	case proto.CommandSetTunerBandwidth:
		c.logErr(req, c.dev.SetTunerBandwidth(req.Parameter))
	case proto.CommandSetI2CTunerRegister:
		c.setI2CTunerRegister(req.Parameter)
	case proto.CommandSetTestMode,
		proto.CommandSetDirectSampling,
		proto.CommandSetOffsetTuning,
		proto.CommandSetRTLCrystal,
		proto.CommandSetTunerCrystal,
		proto.CommandUDPEstablish,
		proto.CommandUDPTerminate:
		c.log.Debug("no-op command", "command", req.Command.String(), "param", req.Parameter)
	default:
		c.log.Warn("unrecognized command", "command", req.Command.String(), "param", req.Parameter)
	}
}

func (c *Controller) setFrequency(param uint32) {
	c.mu.Lock()
	c.state.CenterFrequencyHz = param
	ppm := c.state.PPM
	c.mu.Unlock()

	tuned := TunedFrequency(param, ppm)
	if err := c.dev.SetCenterFrequency(tuned); err != nil {
		c.log.Warn("set frequency failed", "hz", tuned, "err", err)
	}
}

func (c *Controller) setFrequencyCorrection(param uint32) {
	ppm := int32(param)

	c.mu.Lock()
	c.state.PPM = ppm
	center := c.state.CenterFrequencyHz
	c.mu.Unlock()

	tuned := TunedFrequency(center, ppm)
	if err := c.dev.SetCenterFrequency(tuned); err != nil {
		c.log.Warn("re-tune after ppm change failed", "hz", tuned, "ppm", ppm, "err", err)
	}
}

func (c *Controller) setSampleRate(param uint32) {
	rate := param
	if rate == LegacySampleRate {
		rate = CurrentSampleRate
	}
	if err := c.dev.SetSampleRate(rate); err != nil {
		c.log.Warn("set sample rate failed", "hz", rate, "requested", param, "err", err)
	}
}

func (c *Controller) setGainMode(param uint32) {
	mode := device.GainModeAuto
	if param == 1 {
		mode = device.GainModeManual
	}
	if err := c.dev.SetGainMode(mode); err != nil {
		c.log.Warn("set gain mode failed", "mode", mode, "err", err)
	}
}

func (c *Controller) setIFStage(param uint32) {
	stage := uint16(param & 0xFFFF)
	gain := int16((param >> 16) & 0xFFFF)
	if err := c.dev.SetIFGain(stage, gain); err != nil {
		c.log.Warn("set IF stage gain failed", "stage", stage, "gain", gain, "err", err)
	}
}

func (c *Controller) setBiasTee(param uint32) {
	on := param != 0
	if err := c.dev.SetBiasTee(on); err != nil {
		c.log.Warn("set bias tee failed", "on", on, "err", err)
		return
	}
	c.mu.Lock()
	c.state.BiasTee = on
	c.mu.Unlock()
}

func (c *Controller) setI2CTunerRegister(param uint32) {
	write := proto.DecodeI2CRegisterWrite(param)
	if err := c.dev.WriteI2CTunerRegister(write.Register, write.Mask, write.Data); err != nil {
		c.log.Warn("raw I2C tuner write failed",
			"register", write.Register, "mask", write.Mask, "data", write.Data, "err", err)
	}
}

func (c *Controller) logErr(req proto.Request, err error) {
	if err != nil {
		c.log.Warn("command failed", "command", req.Command.String(), "param", req.Parameter, "err", err)
	}
}
