package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	hackrf "github.com/chronowave/hackrf-bridge"
	"github.com/chronowave/hackrf-bridge/capture"
	"github.com/chronowave/hackrf-bridge/stream"
)

type InfoCmd struct{}

func (c *InfoCmd) Run(e *env) error {
	r, err := e.open()
	if err != nil {
		return err
	}
	defer r.Close()

	name, err := r.BoardName()
	if err != nil {
		return err
	}
	ver, err := r.Version()
	if err != nil {
		return err
	}
	fmt.Printf("Source:    %s\n", r.source)
	fmt.Printf("Board:     %s\n", name)
	fmt.Printf("Firmware:  %s\n", ver)
	if !e.radio.Simulate {
		fmt.Printf("libhackrf: %s\n", hackrf.LibraryVersion())
	}
	return nil
}

type CaptureCmd struct {
	Tuning `embed:""`

	LNAGain  int           `help:"RX IF gain, 0-40 dB in 8 dB steps." default:"16"`
	VGAGain  int           `help:"RX baseband gain, 0-62 dB in 2 dB steps." default:"20"`
	Duration time.Duration `short:"d" help:"Stop after this long; 0 runs until interrupted."`
	Limit    string        `help:"Stop after this many sample bytes, e.g. 64MB."`
	Batch    int           `help:"Transfers per Arrow record." default:"16"`
	Queue    int           `help:"Transfers buffered between the radio and the file." default:"64"`

	Output string `arg:"" help:"Capture file to write." type:"path"`
}

func (c *CaptureCmd) Run(e *env) error {
	var limit uint64
	if c.Limit != "" {
		n, err := humanize.ParseBytes(c.Limit)
		if err != nil {
			return fmt.Errorf("--limit: %w", err)
		}
		limit = n
	}

	r, err := e.open()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := c.Tuning.apply(r); err != nil {
		return err
	}
	if err := r.SetLNAGain(c.LNAGain); err != nil {
		return fmt.Errorf("lna gain %d: %w", c.LNAGain, err)
	}
	if err := r.SetVGAGain(c.VGAGain); err != nil {
		return fmt.Errorf("vga gain %d: %w", c.VGAGain, err)
	}

	f, err := os.Create(c.Output)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := capture.NewWriter(f, capture.Metadata{
		CenterFreq: c.Freq,
		SampleRate: c.SampleRate,
		LNAGain:    c.LNAGain,
		VGAGain:    c.VGAGain,
		Amp:        c.Amp,
		Source:     r.source,
		Started:    time.Now(),
	}, c.Batch)
	if err != nil {
		return err
	}
	sink := capture.NewSink(w, capture.SinkOptions{Depth: c.Queue, Limit: limit, Logger: e.log})

	started := time.Now()
	stopped, cb := stopNotifier(sink.Callback)
	if err := r.StartRX(cb); err != nil {
		sink.Close()
		return fmt.Errorf("start rx: %w", err)
	}
	e.log.Noticef("capturing %s at %s to %s", hz(float64(c.Freq)), hz(c.SampleRate), c.Output)

	wait(c.Duration, stopped, r)
	if err := r.StopRX(); err != nil {
		e.log.Warnf("stop rx: %v", err)
	}
	if err := sink.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	e.log.Noticef("captured %s in %s, %d transfers dropped",
		humanize.Bytes(sink.Queued()), time.Since(started).Round(time.Millisecond), sink.Dropped())
	return nil
}

type ReplayCmd struct {
	Freq           uint64        `short:"f" help:"Centre frequency in Hz; 0 uses the capture's."`
	SampleRate     float64       `short:"s" help:"Sample rate in Hz; 0 uses the capture's."`
	BasebandFilter int           `help:"Baseband filter bandwidth in Hz; 0 derives it from the sample rate."`
	Amp            bool          `help:"Enable the RF amplifier."`
	TXVGAGain      int           `help:"TX IF gain, 0-47 dB." default:"0"`
	Loop           bool          `help:"Repeat the capture until interrupted."`
	Duration       time.Duration `short:"d" help:"Stop after this long; 0 runs until the capture ends."`
	Queue          int           `help:"Transfers read ahead of the radio." default:"64"`

	Input string `arg:"" help:"Capture file to transmit." type:"existingfile"`
}

func (c *ReplayCmd) Run(e *env) error {
	f, err := os.Open(c.Input)
	if err != nil {
		return err
	}
	rd, err := capture.NewReader(f)
	if err != nil {
		f.Close()
		return err
	}
	md := rd.Metadata()
	src, err := capture.NewSource(rd, capture.SourceOptions{Depth: c.Queue, Loop: c.Loop, Logger: e.log})
	if err != nil {
		rd.Close()
		f.Close()
		return err
	}
	defer f.Close()
	defer src.Close()

	t := Tuning{Freq: c.Freq, SampleRate: c.SampleRate, BasebandFilter: c.BasebandFilter, Amp: c.Amp}
	if t.Freq == 0 {
		t.Freq = md.CenterFreq
	}
	if t.SampleRate == 0 {
		t.SampleRate = md.SampleRate
	}

	r, err := e.open()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := t.apply(r); err != nil {
		return err
	}
	if err := r.SetTXVGAGain(c.TXVGAGain); err != nil {
		return fmt.Errorf("txvga gain %d: %w", c.TXVGAGain, err)
	}

	stopped, cb := stopNotifier(src.Callback)
	if err := r.StartTX(cb); err != nil {
		return fmt.Errorf("start tx: %w", err)
	}
	e.log.Noticef("replaying %s (captured %s from %s) at %s", c.Input,
		humanize.Time(md.Started), md.Source, hz(float64(t.Freq)))

	wait(c.Duration, stopped, r)
	if err := r.StopTX(); err != nil {
		e.log.Warnf("stop tx: %v", err)
	}
	e.log.Noticef("sent %s, %d underruns", humanize.Bytes(src.Sent()), src.Underruns())
	return src.Close()
}

// stopNotifier wraps cb so the returned channel closes once cb ends the
// stream.
func stopNotifier(cb stream.Callback) (<-chan struct{}, stream.Callback) {
	done := make(chan struct{})
	var once sync.Once
	return done, func(buf []byte) error {
		err := cb(buf)
		if err != nil {
			once.Do(func() { close(done) })
		}
		return err
	}
}

// streamPoll is how often wait asks the radio whether it is still streaming.
var streamPoll = 250 * time.Millisecond

type streamer interface {
	IsStreaming() bool
}

// wait blocks until the stream ends or the process is interrupted. A positive
// d bounds the wait. libhackrf can end a stream on its own after a USB error
// without the callback seeing it, so the radio is polled as well.
func wait(d time.Duration, stopped <-chan struct{}, r streamer) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	tick := time.NewTicker(streamPoll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopped:
			return
		case <-tick.C:
			if !r.IsStreaming() {
				return
			}
		}
	}
}

func hz(v float64) string {
	return humanize.SI(v, "Hz")
}
