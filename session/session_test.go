package session

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hz.tools/sdrtcpd/control"
	"hz.tools/sdrtcpd/device"
	"hz.tools/sdrtcpd/device/mock"
	"hz.tools/sdrtcpd/pack"
	"hz.tools/sdrtcpd/proto"
)

func newTestSession(t *testing.T) (*Session, *mock.Device, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	dev := mock.New(proto.MagicRTLSDR, 5, 29, device.NativeFormatI16)
	packer, err := pack.New(pack.FormatIQ16)
	require.NoError(t, err)

	s := New(Config{
		Conn:       serverConn,
		Device:     dev,
		Controller: control.New(dev, nil),
		Packer:     packer,
		QueueDepth: 4,
	})
	return s, dev, clientConn
}

func TestHandshakeSendsDongleInfo(t *testing.T) {
	s, _, client := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	header := make([]byte, proto.DongleInfoSize)
	_, err := readFull(client, header)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x52, 0x54, 0x4C, 0x30}, header[0:4])

	cancel()
	client.Close()
	<-done
}

func TestStreamingDeliversPackedSamples(t *testing.T) {
	s, dev, client := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	header := make([]byte, proto.DongleInfoSize)
	_, err := readFull(client, header)
	require.NoError(t, err)

	// Wait for StartRx to register, then emit one raw IQ16 sample pair.
	require.Eventually(t, dev.Streaming, time.Second, time.Millisecond)
	raw := []byte{0x01, 0x02, 0x03, 0x04}
	dev.Emit(raw)

	got := make([]byte, len(raw))
	_, err = readFull(client, got)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	cancel()
	client.Close()
	<-done
}

func TestTuneCommandReachesController(t *testing.T) {
	s, dev, client := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	header := make([]byte, proto.DongleInfoSize)
	_, err := readFull(client, header)
	require.NoError(t, err)

	frame := make([]byte, proto.RequestSize)
	frame[0] = byte(proto.CommandSetFrequency)
	binary.BigEndian.PutUint32(frame[1:], 100_000_000)
	_, err = client.Write(frame)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return dev.CenterFrequencyHz == 100_000_000
	}, time.Second, time.Millisecond)

	cancel()
	client.Close()
	<-done
}

func TestCancellationReturnsToDone(t *testing.T) {
	s, _, client := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	header := make([]byte, proto.DongleInfoSize)
	_, err := readFull(client, header)
	require.NoError(t, err)

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not tear down within the bounded delay")
	}
	assert.Equal(t, StateDone, s.State())
	client.Close()
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
