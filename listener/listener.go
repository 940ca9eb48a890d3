// Package listener runs the non-blocking accept loop that gates the
// streaming server to at most one active session at a time.
package listener

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"hz.tools/sdrtcpd/control"
	"hz.tools/sdrtcpd/device"
	"hz.tools/sdrtcpd/metrics"
	"hz.tools/sdrtcpd/pack"
	"hz.tools/sdrtcpd/session"
)

// AcceptTick bounds how long Accept blocks before the loop re-checks for
// shutdown, mirroring the 1-second select tick used elsewhere.
const AcceptTick = time.Second

// SessionFactory builds the per-connection dependencies a Session needs.
// It lets the loop stay device-agnostic: callers close over their own
// device.Device, control.Controller and pack.Packer construction.
type SessionFactory func(conn net.Conn) session.Config

// Loop is a ListenerLoop: it owns the TCP listener, accepts at most one
// session at a time, and exits cleanly when its context is cancelled
// (typically by a process signal handler).
type Loop struct {
	ln      *net.TCPListener
	factory SessionFactory
	log     *log.Logger
}

// New opens a TCP listener on addr and returns a Loop ready to Run.
// SO_REUSEADDR is set on the listening socket so a restarted server can
// rebind the sample port immediately instead of waiting out
// TIME_WAIT from the previous run's connections.
func New(addr string, factory SessionFactory, logger *log.Logger) (*Loop, error) {
	if logger == nil {
		logger = log.Default()
	}
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	rawLn, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}
	ln, ok := rawLn.(*net.TCPListener)
	if !ok {
		rawLn.Close()
		return nil, errors.New("listener: expected a TCP listener")
	}
	return &Loop{
		ln:      ln,
		factory: factory,
		log:     logger.With("component", "listener"),
	}, nil
}

// Addr returns the address the loop is listening on.
func (l *Loop) Addr() net.Addr { return l.ln.Addr() }

// Close closes the underlying listener.
func (l *Loop) Close() error { return l.ln.Close() }

// Run accepts and serves sessions one at a time until ctx is cancelled.
// Each session runs synchronously with respect to the accept loop: while
// a session runs, the loop does not accept a new connection.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.log.Info("listener loop exiting")
			return nil
		default:
		}

		_ = l.ln.SetDeadline(time.Now().Add(AcceptTick))
		conn, err := l.ln.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		l.log.Info("accepted connection", "remote", conn.RemoteAddr())
		cfg := l.factory(conn)
		sess := session.New(cfg)
		if err := sess.Run(ctx); err != nil {
			l.log.Warn("session ended with error", "session_id", sess.ID(), "err", err)
		} else {
			l.log.Info("session ended", "session_id", sess.ID())
		}
	}
}

// DefaultFactory builds a SessionFactory from fixed dependencies; most
// callers with a single device and controller can use this instead of
// writing their own closure.
func DefaultFactory(dev device.Device, ctrl *control.Controller, packer pack.Packer, queueDepth int, logger *log.Logger, m *metrics.Metrics) SessionFactory {
	return func(conn net.Conn) session.Config {
		return session.Config{
			Conn:       conn,
			Device:     dev,
			Controller: ctrl,
			Packer:     packer,
			QueueDepth: queueDepth,
			Logger:     logger,
			Metrics:    m,
		}
	}
}
