package capture

import (
	"sync"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats-server/v2/server"

	"github.com/chronowave/hackrf-bridge/stream"
)

const defaultDepth = 64

type pending struct {
	t   time.Time
	buf *[]byte
}

// SinkOptions tune a Sink. The zero value is usable.
type SinkOptions struct {
	// Depth is the number of blocks that may wait for the writer.
	Depth int
	// Limit stops the stream once this many sample bytes were queued. Zero
	// means no limit.
	Limit  uint64
	Logger nats.Logger
}

// Sink is a receive callback that records blocks through a Writer. The
// callback only copies and enqueues so it never holds up the driver thread;
// when the writer falls behind, blocks are dropped and counted.
type Sink struct {
	w     *Writer
	log   nats.Logger
	limit uint64
	queue chan pending
	pool  sync.Pool
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	queued  atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Bool
	err     error
}

// NewSink starts the writer goroutine. The Sink owns w from here on.
func NewSink(w *Writer, opts SinkOptions) *Sink {
	if opts.Depth <= 0 {
		opts.Depth = defaultDepth
	}
	if opts.Logger == nil {
		opts.Logger = stream.NopLogger{}
	}
	s := &Sink{
		w:     w,
		log:   opts.Logger,
		limit: opts.Limit,
		queue: make(chan pending, opts.Depth),
		done:  make(chan struct{}),
	}
	go s.drain()
	return s
}

// Callback implements stream.Callback.
func (s *Sink) Callback(buf []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return stream.ErrStop
	}
	if s.failed.Load() {
		// err is written once before failed is set.
		return s.err
	}

	n := uint64(len(buf))
	if s.limit > 0 {
		q := s.queued.Load()
		if q >= s.limit {
			return stream.ErrStop
		}
		if q+n > s.limit {
			n = s.limit - q
		}
	}

	p := pending{t: time.Now(), buf: s.get(int(n))}
	copy(*p.buf, buf[:n])
	select {
	case s.queue <- p:
		s.queued.Add(n)
	default:
		s.dropped.Add(1)
		s.pool.Put(p.buf)
	}
	return nil
}

func (s *Sink) get(n int) *[]byte {
	if v, ok := s.pool.Get().(*[]byte); ok && cap(*v) >= n {
		*v = (*v)[:n]
		return v
	}
	b := make([]byte, n)
	return &b
}

func (s *Sink) drain() {
	defer close(s.done)
	for p := range s.queue {
		if !s.failed.Load() {
			if err := s.w.Write(p.t, *p.buf); err != nil {
				s.log.Errorf("capture: write failed: %v", err)
				s.err = err
				s.failed.Store(true)
			}
		}
		s.pool.Put(p.buf)
	}
}

// Queued returns the number of sample bytes accepted for writing.
func (s *Sink) Queued() uint64 {
	return s.queued.Load()
}

// Dropped returns the number of blocks discarded because the queue was full.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close waits for queued blocks to be written and closes the Writer. Stop
// the stream first; later callbacks answer stream.ErrStop.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	err := s.w.Close()
	if s.failed.Load() {
		err = s.err
	}
	if d := s.dropped.Load(); d > 0 {
		s.log.Warnf("capture: %d blocks dropped, writer could not keep up", d)
	}
	return err
}
