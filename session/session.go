// Package session orchestrates one accepted client connection: handshake,
// producer/sender/command worker goroutines, and teardown.
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"hz.tools/sdrtcpd/control"
	"hz.tools/sdrtcpd/device"
	"hz.tools/sdrtcpd/metrics"
	"hz.tools/sdrtcpd/pack"
	"hz.tools/sdrtcpd/proto"
	"hz.tools/sdrtcpd/queue"
)

// TickInterval is the select-style polling tick used by the sender and
// command workers to stay responsive to cancellation without per-op
// deadlines beyond this bound.
const TickInterval = time.Second

// Config configures one Session.
type Config struct {
	Conn       net.Conn
	Device     device.Device
	Controller *control.Controller
	Packer     pack.Packer
	QueueDepth int
	Logger     *log.Logger
	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics
}

// State is the StreamSession lifecycle state.
type State int

const (
	StateHandshaking State = iota
	StateStreaming
	StateTearingDown
	StateDone
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateTearingDown:
		return "tearing-down"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Session is one active client: its socket, its borrowed device, its
// sample queue, and the three workers that drive it.
type Session struct {
	id         string
	conn       net.Conn
	dev        device.Device
	controller *control.Controller
	packer     pack.Packer
	queue      *queue.Queue
	log        *log.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	state State

	ctx    context.Context
	cancel context.CancelFunc

	dropLoggedOnce sync.Once
}

// New creates a Session from cfg. The session does not start work until
// Run is called.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		conn:       cfg.Conn,
		dev:        cfg.Device,
		controller: cfg.Controller,
		packer:     cfg.Packer,
		queue:      queue.New(cfg.QueueDepth),
		log:        logger.With("component", "session", "session_id", id),
		metrics:    cfg.Metrics,
		state:      StateHandshaking,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives the session end to end: handshake, worker startup,
// streaming until cancellation, teardown. It returns once the socket is
// closed and every worker has exited.
//
// Transitions out of Streaming are triggered by a socket error in
// either direction, a device error from StartRx, or ctx being
// cancelled (e.g. by a process signal).
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()

	if tc, ok := s.conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}

	if err := s.handshake(); err != nil {
		s.log.Warn("handshake failed", "err", err)
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()
	s.setState(StateStreaming)

	if s.metrics != nil {
		s.metrics.SessionsTotal.Inc()
		s.metrics.SessionsActive.Inc()
		defer s.metrics.SessionsActive.Dec()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runSender()
	}()
	go func() {
		defer wg.Done()
		s.runCommandReader()
	}()

	startErr := s.dev.StartRx(s.ctx, s.producerCallback)
	if startErr != nil {
		s.log.Warn("device StartRx failed", "err", startErr)
		s.fail()
	}

	<-s.ctx.Done()
	// Wake the sender if it is blocked on an empty queue.
	s.queue.Cancel()

	if err := s.dev.StopRx(); err != nil {
		s.log.Warn("device StopRx failed", "err", err)
	}

	wg.Wait()

	s.setState(StateTearingDown)
	s.queue.DrainAndRelease()
	s.setState(StateDone)

	return startErr
}

func (s *Session) handshake() error {
	info := proto.DongleInfo{
		Magic:          s.dev.Magic(),
		TunerType:      s.dev.TunerType(),
		TunerGainCount: s.dev.TunerGainCount(),
	}
	return proto.WriteDongleInfo(s.conn, info)
}

// fail sets the internal cancellation; it is idempotent via
// context.CancelFunc's own idempotence and safe to call from any
// worker or the signal handler's goroutine.
func (s *Session) fail() {
	if s.cancel != nil {
		s.cancel()
	}
	s.queue.Cancel()
}

// producerCallback is invoked by the device driver's own thread. It never
// blocks and never waits on the queue. An unsigned 8-bit block (RTL-SDR)
// is copied into one buffer and pushed as delivered; any other native
// format is normalized to 16-bit IQ and then packed, which allocates two
// buffers per call.
func (s *Session) producerCallback(raw []byte) {
	if s.dev.NativeSampleFormat() == device.NativeFormatU8 {
		// Unsigned 8-bit IQ is already the rtl_tcp wire layout.
		s.push(append([]byte(nil), raw...))
		return
	}

	normalized, err := pack.Normalize(s.dev.NativeSampleFormat(), raw)
	if err != nil {
		s.dropLoggedOnce.Do(func() {
			s.log.Warn("sample normalize failed, dropping buffer", "err", err)
		})
		return
	}

	packed, err := s.packer.Pack(normalized)
	if err != nil {
		s.dropLoggedOnce.Do(func() {
			s.log.Warn("sample pack failed, dropping buffer", "err", err)
		})
		return
	}
	s.push(packed)
}

// push enqueues one wire-format buffer and updates the queue metrics.
func (s *Session) push(packed []byte) {
	droppedBefore := s.queue.Dropped()
	s.queue.Push(packed)

	if s.metrics != nil {
		s.metrics.SamplesPushed.Inc()
		s.metrics.QueueDepth.Set(float64(s.queue.Len()))
		if s.queue.Dropped() > droppedBefore {
			s.metrics.SamplesDropped.Inc()
		}
	}
}

func (s *Session) runSender() {
	for {
		buf, ok := s.queue.PopBlocking()
		if !ok {
			return
		}
		if err := s.writeWithTick(buf); err != nil {
			s.log.Warn("sample socket write failed", "err", err)
			s.fail()
			return
		}
	}
}

// writeWithTick writes buf to the connection using repeated
// short-deadline attempts so that a blocked write does not prevent
// cancellation from being noticed within TickInterval.
func (s *Session) writeWithTick(buf []byte) error {
	for len(buf) > 0 {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(TickInterval))
		n, err := s.conn.Write(buf)
		buf = buf[n:]
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *Session) runCommandReader() {
	r := proto.RequestReader(s.conn)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(TickInterval))
		req, err := proto.ReadRequest(r)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.log.Warn("command socket read failed", "err", err)
			}
			s.fail()
			return
		}
		s.controller.Apply(req)
		if s.metrics != nil {
			s.metrics.CommandsApplied.WithLabelValues(req.Command.String()).Inc()
		}
	}
}
