// Package register implements the optional secondary TCP server that
// periodically reports a snapshot of the tuner's I2C register cache,
// for diagnostics.
package register

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"

	"hz.tools/sdrtcpd/device"
)

// RegisterCount is N, the number of registers reported per frame.
const RegisterCount = 32

// FrameSize is the wire size of one register snapshot frame.
const FrameSize = 3 + RegisterCount

// DefaultPeriod is the default interval between snapshots when the
// caller does not configure one.
const DefaultPeriod = 100 * time.Millisecond

// Reporter serves tuner register snapshots on a secondary port. It
// accepts one client at a time; a send error or the accept loop's
// context being cancelled ends that client's loop, and the outer accept
// loop continues.
type Reporter struct {
	dev    device.Device
	ln     net.Listener
	period time.Duration
	log    *log.Logger
}

// New opens a listener on addr (conventionally the sample port + 1) and
// returns a Reporter. period is the snapshot interval; a non-positive
// value is replaced by DefaultPeriod.
func New(addr string, dev device.Device, period time.Duration, logger *log.Logger) (*Reporter, error) {
	if period <= 0 {
		period = DefaultPeriod
	}
	if logger == nil {
		logger = log.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Reporter{
		dev:    dev,
		ln:     ln,
		period: period,
		log:    logger.With("component", "register"),
	}, nil
}

// Addr returns the address the reporter is listening on.
func (r *Reporter) Addr() net.Addr { return r.ln.Addr() }

// Close closes the underlying listener.
func (r *Reporter) Close() error { return r.ln.Close() }

// Run accepts clients one at a time and streams register snapshots to
// each until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	defer r.ln.Close()

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)

	for {
		go func() {
			conn, err := r.ln.Accept()
			accepted <- acceptResult{conn, err}
		}()

		select {
		case <-ctx.Done():
			return nil
		case res := <-accepted:
			if res.err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.log.Warn("register port accept failed", "err", res.err)
				continue
			}
			r.serveClient(ctx, res.conn)
		}
	}
}

func (r *Reporter) serveClient(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := r.buildFrame()
			if err != nil {
				r.log.Warn("register read failed", "err", err)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	}
}

func (r *Reporter) buildFrame() ([]byte, error) {
	regs, err := r.dev.ReadTunerRegisters(RegisterCount)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, FrameSize)
	frame[0] = 0x48
	frame[1] = 0x00
	frame[2] = RegisterCount
	copy(frame[3:], regs)
	return frame, nil
}
