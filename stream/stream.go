// Package stream implements the dispatch side of the sample callback bridge:
// resolving a transfer's context to a registered Go callback, handing it the
// sample buffer and turning the result into a driver status code.
package stream

import (
	"errors"
	"fmt"
	"runtime/cgo"
	"sync"
	"sync/atomic"

	nats "github.com/nats-io/nats-server/v2/server"

	"github.com/chronowave/hackrf-bridge/bridge"
)

// ErrStop ends a stream without it being reported as a failure.
var ErrStop = errors.New("stream: stop requested")

// Callback receives (rx) or fills (tx) one block of interleaved 8-bit I/Q
// samples. buf aliases driver memory and is only valid for the duration of
// the call. Returning an error stops the stream.
type Callback func(buf []byte) error

// Transfer is a view of one driver transfer descriptor.
type Transfer interface {
	// Samples returns the valid portion of the transfer buffer.
	Samples() []byte
	// Context returns the user context the stream for dir was started with.
	Context(dir bridge.Direction) uintptr
}

// Session is a callback registered for one direction. Its Handle travels
// through the driver as the transfer context.
type Session struct {
	cb     Callback
	dir    bridge.Direction
	handle cgo.Handle

	closed atomic.Bool
	once   sync.Once
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (s *Session) Handle() uintptr {
	return uintptr(s.handle)
}

func (s *Session) Direction() bridge.Direction {
	return s.dir
}

// Done is closed once the stream has been stopped by a callback or the
// session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the stream, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close invalidates the session. Transfers still in flight that reference it
// are answered with bridge.Stop.
func (s *Session) Close() {
	s.finish(nil)
	if s.closed.CompareAndSwap(false, true) {
		s.handle.Delete()
	}
}

func (s *Session) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// Dispatcher implements bridge.Dispatcher for any Transfer view.
type Dispatcher[T Transfer] struct {
	logger  atomic.Value
	metrics *Metrics
}

type loggerHolder struct {
	l nats.Logger
}

func NewDispatcher[T Transfer]() *Dispatcher[T] {
	d := &Dispatcher[T]{metrics: NewMetrics()}
	d.SetLogger(nil)
	return d
}

// SetLogger replaces the logger. A nil logger discards output.
func (d *Dispatcher[T]) SetLogger(l nats.Logger) {
	if l == nil {
		l = NopLogger{}
	}
	d.logger.Store(loggerHolder{l: l})
}

func (d *Dispatcher[T]) Logger() nats.Logger {
	return d.logger.Load().(loggerHolder).l
}

func (d *Dispatcher[T]) Metrics() *Metrics {
	return d.metrics
}

// Register creates a session for cb. The caller passes Session.Handle as the
// driver context and closes the session once the stream is stopped.
func (d *Dispatcher[T]) Register(cb Callback, dir bridge.Direction) *Session {
	s := &Session{
		cb:   cb,
		dir:  dir,
		done: make(chan struct{}),
	}
	s.handle = cgo.NewHandle(s)
	return s
}

// Dispatch runs on the driver's thread once per transfer.
func (d *Dispatcher[T]) Dispatch(t T, dir bridge.Direction) (status int) {
	var s *Session
	defer func() {
		if r := recover(); r != nil {
			status = bridge.Stop
			if s == nil {
				// cgo.Handle.Value panics on a deleted handle.
				d.metrics.stopped(dir, reasonUnregistered)
				return
			}
			d.Logger().Errorf("%s callback panicked: %v", dir, r)
			d.metrics.stopped(dir, reasonPanic)
			s.finish(fmt.Errorf("stream: %s callback panicked: %v", dir, r))
		}
	}()

	h := t.Context(dir)
	if h == 0 {
		d.metrics.stopped(dir, reasonUnregistered)
		return bridge.Stop
	}
	s, ok := cgo.Handle(h).Value().(*Session)
	if !ok {
		d.metrics.stopped(dir, reasonUnregistered)
		return bridge.Stop
	}
	if s.dir != dir {
		d.Logger().Warnf("%s transfer carries a %s session", dir, s.dir)
		d.metrics.stopped(dir, reasonDirection)
		return bridge.Stop
	}
	// Transfers already queued in the driver keep arriving for a while
	// after the stream has been stopped.
	select {
	case <-s.done:
		d.metrics.stopped(dir, reasonClosed)
		return bridge.Stop
	default:
	}

	buf := t.Samples()
	d.metrics.transferred(dir, len(buf))

	if err := s.cb(buf); err != nil {
		if errors.Is(err, ErrStop) {
			d.Logger().Debugf("%s stream stopped by callback", dir)
			d.metrics.stopped(dir, reasonStopped)
		} else {
			d.Logger().Errorf("%s callback failed: %v", dir, err)
			d.metrics.stopped(dir, reasonError)
		}
		s.finish(err)
		return bridge.Stop
	}
	return bridge.Continue
}
