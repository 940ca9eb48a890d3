package listener

import (
	"context"
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

func TestLoopServesOneSessionThenAnother(t *testing.T) {
	dev := mock.New(proto.MagicRTLSDR, 5, 29, device.NativeFormatU8)
	ctrl := control.New(dev, nil)
	packer, err := pack.New(pack.FormatIQ16)
	require.NoError(t, err)

	l, err := New("127.0.0.1:0", DefaultFactory(dev, ctrl, packer, 4, nil, nil), nil)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- l.Run(ctx) }()

	// First client: read the handshake, then disconnect.
	conn1, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	header := make([]byte, proto.DongleInfoSize)
	_, err = readFull(conn1, header)
	require.NoError(t, err)
	assert.Equal(t, byte('R'), header[0])
	conn1.Close()

	// Second client must also be served once the first session tears
	// down, proving only one session runs at a time and the loop
	// resumes accepting after.
	conn2, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	_, err = readFull(conn2, header)
	require.NoError(t, err)
	conn2.Close()

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("listener loop did not exit after cancellation")
	}
}

func TestLoopExitsOnContextCancel(t *testing.T) {
	dev := mock.New(proto.MagicRTLSDR, 5, 29, device.NativeFormatU8)
	ctrl := control.New(dev, nil)
	packer, _ := pack.New(pack.FormatIQ16)

	l, err := New("127.0.0.1:0", DefaultFactory(dev, ctrl, packer, 4, nil, nil), nil)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("listener loop did not exit within the accept tick bound")
	}
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
