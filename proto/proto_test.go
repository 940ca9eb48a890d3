package proto

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadRequestTuneCommand(t *testing.T) {
	// cmd=1, param = 100_000_000 big-endian: 0x05F5E100.
	frame := []byte{0x01, 0x05, 0xF5, 0xE1, 0x00}
	req, err := ReadRequest(bytes.NewReader(frame))
	assert.NoError(t, err)
	assert.Equal(t, CommandSetFrequency, req.Command)
	assert.Equal(t, uint32(100_000_000), req.Parameter)
}

func TestReadRequestRetriesShortReads(t *testing.T) {
	r := io.MultiReader(
		bytes.NewReader([]byte{0x01, 0x00}),
		bytes.NewReader([]byte{0x00}),
		bytes.NewReader([]byte{0x00, 0x01}),
	)
	req, err := ReadRequest(r)
	assert.NoError(t, err)
	assert.Equal(t, CommandSetFrequency, req.Command)
	assert.Equal(t, uint32(1), req.Parameter)
}

func TestReadRequestZeroLengthIsEOF(t *testing.T) {
	_, err := ReadRequest(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestReadRequestPartialRecordIsUnexpectedEOF(t *testing.T) {
	_, err := ReadRequest(bytes.NewReader([]byte{0x01, 0x02}))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestDecodeI2CRegisterWrite(t *testing.T) {
	// param 0x0130A055 -> register=0x013, mask=0x0A, data=0x055.
	got := DecodeI2CRegisterWrite(0x0130A055)
	assert.Equal(t, I2CRegisterWrite{Register: 0x013, Mask: 0x0A, Data: 0x055}, got)
}

func TestWriteDongleInfoRTLSDR(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDongleInfo(&buf, DongleInfo{
		Magic:          MagicRTLSDR,
		TunerType:      5,
		TunerGainCount: 29,
	})
	assert.NoError(t, err)

	got := buf.Bytes()
	assert.Equal(t, DongleInfoSize, len(got))
	assert.Equal(t, []byte{0x52, 0x54, 0x4C, 0x30}, got[0:4])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x05}, got[4:8])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x1D}, got[8:12])
}

func TestAirspyTunerTypeOverloadsLowByte(t *testing.T) {
	got := AirspyTunerType(0x00000000, 16)
	assert.Equal(t, uint32(16), got)

	got = AirspyTunerType(0xAABBCCDD, 12)
	assert.Equal(t, uint32(0xAABBCC0C), got)
}

func TestCommandStringUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN(0xfe)", Command(0xFE).String())
}
