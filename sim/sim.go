// Package sim is a software stand-in for a HackRF.
//
// It drives a bridge.Bridge the way libhackrf drives the native trampolines:
// each running stream owns a goroutine that fills or drains a transfer
// buffer and invokes the registered entry point once per block. The
// transfer context carries the stream session handle, so the full dispatch
// path runs without hardware.
package sim

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats-server/v2/server"

	"github.com/chronowave/hackrf-bridge/bridge"
	"github.com/chronowave/hackrf-bridge/stream"
)

// DefaultTransferSize matches the libhackrf USB transfer buffer.
const DefaultTransferSize = 262144

const (
	defaultSampleRate = 10e6
	defaultToneHz     = 100e3
	defaultAmplitude  = 0.7
)

var (
	ErrClosed    = errors.New("sim: device closed")
	ErrStreaming = errors.New("sim: already streaming")
	ErrParam     = errors.New("sim: invalid param")
)

// Config shapes the simulated sample stream.
type Config struct {
	// TransferSize is the size in bytes of each block. Zero means
	// DefaultTransferSize.
	TransferSize int
	// Interval between blocks. Zero derives it from the sample rate; a
	// negative value runs as fast as the callback allows.
	Interval time.Duration
	// ToneHz is the offset of the generated tone from the centre frequency.
	ToneHz float64
	// Amplitude of the tone in full scale, (0, 1].
	Amplitude float64
}

// Transfer is the simulated transfer descriptor.
type Transfer struct {
	Buffer      []byte
	ValidLength int
	RxCtx       uintptr
	TxCtx       uintptr
}

func (t *Transfer) Samples() []byte {
	return t.Buffer[:t.ValidLength]
}

func (t *Transfer) Context(dir bridge.Direction) uintptr {
	if dir == bridge.Transmit {
		return t.TxCtx
	}
	return t.RxCtx
}

type run struct {
	sess *stream.Session
	quit chan struct{}
	wg   sync.WaitGroup
	live atomic.Bool
}

// Device is a simulated radio.
type Device struct {
	cfg  Config
	disp *stream.Dispatcher[*Transfer]
	br   *bridge.Bridge[*Transfer]

	mu         sync.Mutex
	closed     bool
	freq       uint64
	sampleRate float64
	bbFilter   int
	amp        bool
	antenna    bool
	lnaGain    int
	vgaGain    int
	txvgaGain  int
	runs       [2]*run

	transmitted atomic.Uint64
}

// New returns a simulated device. l may be nil.
func New(cfg Config, l nats.Logger) *Device {
	if cfg.TransferSize <= 0 {
		cfg.TransferSize = DefaultTransferSize
	}
	// Keep whole I/Q pairs in every block.
	cfg.TransferSize &^= 1
	if cfg.TransferSize == 0 {
		cfg.TransferSize = 2
	}
	if cfg.ToneHz == 0 {
		cfg.ToneHz = defaultToneHz
	}
	if cfg.Amplitude <= 0 || cfg.Amplitude > 1 {
		cfg.Amplitude = defaultAmplitude
	}
	disp := stream.NewDispatcher[*Transfer]()
	disp.SetLogger(l)
	return &Device{
		cfg:        cfg,
		disp:       disp,
		br:         bridge.New[*Transfer](disp),
		sampleRate: defaultSampleRate,
	}
}

// Dispatcher exposes the device's dispatcher, mainly for its metrics.
func (d *Device) Dispatcher() *stream.Dispatcher[*Transfer] {
	return d.disp
}

func (d *Device) Version() (string, error) {
	return "sim", nil
}

func (d *Device) BoardName() (string, error) {
	return "Simulated HackRF", nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	runs := d.runs
	d.runs = [2]*run{}
	d.mu.Unlock()
	for _, r := range runs {
		if r != nil {
			r.stop()
		}
	}
	return nil
}

func (d *Device) StartRX(cb stream.Callback) error {
	return d.start(bridge.Receive, cb)
}

func (d *Device) StopRX() error {
	return d.stopDir(bridge.Receive)
}

func (d *Device) StartTX(cb stream.Callback) error {
	return d.start(bridge.Transmit, cb)
}

func (d *Device) StopTX() error {
	return d.stopDir(bridge.Transmit)
}

// IsStreaming reports whether any direction is still running. A stream that
// was stopped by its callback is no longer streaming.
func (d *Device) IsStreaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.runs {
		if r != nil && r.live.Load() {
			return true
		}
	}
	return false
}

// Transmitted returns the number of bytes the TX callbacks produced.
func (d *Device) Transmitted() uint64 {
	return d.transmitted.Load()
}

func (d *Device) start(dir bridge.Direction, cb stream.Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if r := d.runs[dir]; r != nil {
		if r.live.Load() {
			return ErrStreaming
		}
		// Finished on its own; reap before restarting.
		r.stop()
	}

	r := &run{
		sess: d.disp.Register(cb, dir),
		quit: make(chan struct{}),
	}
	r.live.Store(true)
	d.runs[dir] = r

	t := &Transfer{Buffer: make([]byte, d.cfg.TransferSize)}
	if dir == bridge.Transmit {
		t.TxCtx = r.sess.Handle()
	} else {
		t.RxCtx = r.sess.Handle()
	}
	interval := d.interval()
	r.wg.Add(1)
	go d.loop(r, d.br.Resolve(dir), t, interval, d.sampleRate)
	d.disp.Logger().Noticef("sim: %s stream started, %d byte transfers every %s", dir, d.cfg.TransferSize, interval)
	return nil
}

func (d *Device) stopDir(dir bridge.Direction) error {
	d.mu.Lock()
	r := d.runs[dir]
	d.runs[dir] = nil
	d.mu.Unlock()
	if r != nil {
		r.stop()
	}
	return nil
}

func (r *run) stop() {
	select {
	case <-r.quit:
	default:
		close(r.quit)
	}
	r.wg.Wait()
	r.sess.Close()
}

func (d *Device) interval() time.Duration {
	switch {
	case d.cfg.Interval > 0:
		return d.cfg.Interval
	case d.cfg.Interval < 0:
		return 0
	}
	samples := float64(d.cfg.TransferSize / 2)
	return time.Duration(samples / d.sampleRate * float64(time.Second))
}

func (d *Device) loop(r *run, entry *bridge.EntryPoint[*Transfer], t *Transfer, interval time.Duration, rate float64) {
	defer r.wg.Done()
	defer r.live.Store(false)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	tone := newTone(d.cfg.ToneHz, rate, d.cfg.Amplitude)
	dir := entry.Direction()
	for {
		select {
		case <-r.quit:
			return
		default:
		}
		if tick != nil {
			select {
			case <-r.quit:
				return
			case <-tick:
			}
		}

		if dir == bridge.Receive {
			tone.fill(t.Buffer)
		} else {
			for i := range t.Buffer {
				t.Buffer[i] = 0
			}
		}
		t.ValidLength = len(t.Buffer)

		if status := entry.Call(t); status != bridge.Continue {
			d.disp.Logger().Noticef("sim: %s stream ended by callback (status %d)", dir, status)
			return
		}
		if dir == bridge.Transmit {
			d.transmitted.Add(uint64(t.ValidLength))
		}
	}
}

// tone generates interleaved signed 8-bit I/Q with continuous phase across
// blocks.
type tone struct {
	phase float64
	step  float64
	amp   float64
}

func newTone(hz, rate, amp float64) *tone {
	return &tone{step: 2 * math.Pi * hz / rate, amp: amp * 127}
}

func (g *tone) fill(buf []byte) {
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i] = byte(int8(math.Round(g.amp * math.Cos(g.phase))))
		buf[i+1] = byte(int8(math.Round(g.amp * math.Sin(g.phase))))
		g.phase += g.step
		if g.phase > math.Pi {
			g.phase -= 2 * math.Pi
		} else if g.phase < -math.Pi {
			g.phase += 2 * math.Pi
		}
	}
}
