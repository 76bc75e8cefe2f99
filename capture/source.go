package capture

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	nats "github.com/nats-io/nats-server/v2/server"

	"github.com/chronowave/hackrf-bridge/stream"
)

// SourceOptions tune a Source. The zero value is usable.
type SourceOptions struct {
	// Depth is the number of blocks read ahead of the driver.
	Depth int
	// Loop restarts from the first block at the end of the capture.
	Loop   bool
	Logger nats.Logger
}

// Source is a transmit callback that replays a capture. Blocks are read
// ahead on a separate goroutine; if none is ready when the driver asks, the
// buffer is sent as silence and an underrun is counted.
type Source struct {
	r     *Reader
	log   nats.Logger
	loop  bool
	queue chan []byte
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
	cerr  error

	sent      atomic.Uint64
	underruns atomic.Uint64

	mu  sync.Mutex
	err error
}

// NewSource fills the read-ahead queue before returning so the first
// transfers have data. The Source owns r from here on.
func NewSource(r *Reader, opts SourceOptions) (*Source, error) {
	if opts.Depth <= 0 {
		opts.Depth = defaultDepth
	}
	if opts.Logger == nil {
		opts.Logger = stream.NopLogger{}
	}
	s := &Source{
		r:     r,
		log:   opts.Logger,
		loop:  opts.Loop,
		queue: make(chan []byte, opts.Depth),
		quit:  make(chan struct{}),
	}

	for i := 0; i < opts.Depth; i++ {
		b, err := s.next()
		if errors.Is(err, io.EOF) {
			close(s.queue)
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		s.queue <- b
	}
	s.wg.Add(1)
	go s.feed()
	return s, nil
}

func (s *Source) next() ([]byte, error) {
	b, err := s.r.Next()
	if errors.Is(err, io.EOF) && s.loop && s.r.idx > 0 {
		s.r.Rewind()
		b, err = s.r.Next()
	}
	return b.Samples, err
}

func (s *Source) feed() {
	defer s.wg.Done()
	defer close(s.queue)
	for {
		b, err := s.next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Errorf("capture: replay read failed: %v", err)
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
		select {
		case s.queue <- b:
		case <-s.quit:
			return
		}
	}
}

// Callback implements stream.Callback.
func (s *Source) Callback(buf []byte) error {
	select {
	case b, ok := <-s.queue:
		if !ok {
			return stream.ErrStop
		}
		n := copy(buf, b)
		clear(buf[n:])
		s.sent.Add(uint64(n))
	default:
		clear(buf)
		s.underruns.Add(1)
	}
	return nil
}

// Sent returns the number of capture bytes handed to the driver.
func (s *Source) Sent() uint64 {
	return s.sent.Load()
}

func (s *Source) Underruns() uint64 {
	return s.underruns.Load()
}

// Close stops the read-ahead and closes the Reader. It returns the read error
// that ended the replay early, if any.
func (s *Source) Close() error {
	s.once.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.cerr = s.r.Close()
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return s.cerr
}
