// Package proto implements the rtl_tcp wire protocol: the 12-byte
// dongle-info handshake and the 5-byte command frames clients send on
// the sample socket.
package proto

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Command identifies the action requested by a 5-byte command frame.
type Command uint8

// Recognized command codes. Numbering and names are bit-exact with the
// rtl_tcp wire protocol.
const (
	CommandSetFrequency           Command = 0x01
	CommandSetSampleRate          Command = 0x02
	CommandSetGainMode            Command = 0x03
	CommandSetGain                Command = 0x04
	CommandSetFrequencyCorrection Command = 0x05
	CommandSetIFStage             Command = 0x06
	CommandSetTestMode            Command = 0x07
	CommandSetAGCMode             Command = 0x08
	CommandSetDirectSampling      Command = 0x09
	CommandSetOffsetTuning        Command = 0x0A
	CommandSetRTLCrystal          Command = 0x0B
	CommandSetTunerCrystal        Command = 0x0C
	CommandSetTunerGainByIndex    Command = 0x0D
	CommandSetBiasTee             Command = 0x0F
	CommandSetTunerBandwidth      Command = 0x40
	CommandUDPEstablish           Command = 0x41
	CommandUDPTerminate           Command = 0x42
	CommandSetI2CTunerRegister    Command = 0x43
)

// String names a Command the way log lines and error messages should
// refer to it.
func (c Command) String() string {
	switch c {
	case CommandSetFrequency:
		return "SET_FREQUENCY"
	case CommandSetSampleRate:
		return "SET_SAMPLE_RATE"
	case CommandSetGainMode:
		return "SET_GAIN_MODE"
	case CommandSetGain:
		return "SET_GAIN"
	case CommandSetFrequencyCorrection:
		return "SET_FREQUENCY_CORRECTION"
	case CommandSetIFStage:
		return "SET_IF_STAGE"
	case CommandSetTestMode:
		return "SET_TEST_MODE"
	case CommandSetAGCMode:
		return "SET_AGC_MODE"
	case CommandSetDirectSampling:
		return "SET_DIRECT_SAMPLING"
	case CommandSetOffsetTuning:
		return "SET_OFFSET_TUNING"
	case CommandSetRTLCrystal:
		return "SET_RTL_CRYSTAL"
	case CommandSetTunerCrystal:
		return "SET_TUNER_CRYSTAL"
	case CommandSetTunerGainByIndex:
		return "SET_TUNER_GAIN_BY_INDEX"
	case CommandSetBiasTee:
		return "SET_BIAS_TEE"
	case CommandSetTunerBandwidth:
		return "SET_TUNER_BANDWIDTH"
	case CommandUDPEstablish:
		return "UDP_ESTABLISH"
	case CommandUDPTerminate:
		return "UDP_TERMINATE"
	case CommandSetI2CTunerRegister:
		return "SET_I2C_TUNER_REGISTER"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(c))
	}
}

// RequestSize is the fixed wire size of a Request frame.
const RequestSize = 5

// Request is a decoded 5-byte command frame: one opcode byte followed by
// a big-endian uint32 parameter.
type Request struct {
	Command   Command
	Parameter uint32
}

// ReadRequest reads one 5-byte command frame from r, retrying across
// short reads. It returns io.EOF only when zero bytes could be read for
// this frame; a partial frame followed by EOF is reported as
// io.ErrUnexpectedEOF, matching "a partial record at teardown is
// discarded".
func ReadRequest(r io.Reader) (Request, error) {
	var buf [RequestSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Request{}, io.ErrUnexpectedEOF
		}
		return Request{}, err
	}
	return Request{
		Command:   Command(buf[0]),
		Parameter: binary.BigEndian.Uint32(buf[1:5]),
	}, nil
}

// RequestReader wraps an io.Reader in a bufio.Reader sized for repeated
// small command reads.
func RequestReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 4096)
}

// I2CRegisterWrite is the decoded payload of a SET_I2C_TUNER_REGISTER
// parameter: bits 31..20 are the register address, bits 19..12 are a
// mask, bits 11..0 are the data to write.
type I2CRegisterWrite struct {
	Register uint16
	Mask     uint8
	Data     uint16
}

// DecodeI2CRegisterWrite splits a SET_I2C_TUNER_REGISTER parameter into
// its register/mask/data fields.
func DecodeI2CRegisterWrite(param uint32) I2CRegisterWrite {
	return I2CRegisterWrite{
		Register: uint16((param >> 20) & 0xFFF),
		Mask:     uint8((param >> 12) & 0xFF),
		Data:     uint16(param & 0xFFF),
	}
}

// DongleInfoSize is the fixed wire size of the handshake frame.
const DongleInfoSize = 12

// Magic values identifying the device family in DongleInfo.
var (
	MagicRTLSDR = [4]byte{'R', 'T', 'L', '0'}
	MagicAirspy = [4]byte{'A', 'S', 'P', 'Y'}
)

// DongleInfo is the 12-byte handshake the server sends immediately after
// accepting a connection, before any sample byte.
type DongleInfo struct {
	Magic          [4]byte
	TunerType      uint32
	TunerGainCount uint32
}

// WriteDongleInfo serializes d and writes it to w in one call.
func WriteDongleInfo(w io.Writer, d DongleInfo) error {
	var buf [DongleInfoSize]byte
	copy(buf[0:4], d.Magic[:])
	binary.BigEndian.PutUint32(buf[4:8], d.TunerType)
	binary.BigEndian.PutUint32(buf[8:12], d.TunerGainCount)
	_, err := w.Write(buf[:])
	return err
}

// AirspyTunerType packs the Airspy bit-width selector into byte index 7
// of the DongleInfo frame (the low-order byte of the big-endian
// tuner_type field), per the Airspy handshake overload.
func AirspyTunerType(baseTunerType uint32, bitWidth uint8) uint32 {
	return (baseTunerType &^ 0xFF) | uint32(bitWidth)
}
