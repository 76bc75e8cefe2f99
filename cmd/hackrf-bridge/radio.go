package main

import (
	"fmt"

	nats "github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus"

	hackrf "github.com/chronowave/hackrf-bridge"
	"github.com/chronowave/hackrf-bridge/sim"
	"github.com/chronowave/hackrf-bridge/stream"
)

type RadioFlags struct {
	Simulate bool   `help:"Use a simulated radio instead of HackRF hardware." env:"HACKRF_SIMULATE"`
	Serial   string `help:"Open the HackRF whose serial number ends with this." env:"HACKRF_SERIAL"`
}

// radio is the surface shared by hackrf.Device and sim.Device.
type radio interface {
	Version() (string, error)
	BoardName() (string, error)
	SetFreq(freqHz uint64) error
	SetSampleRate(freqHz float64) error
	SetBasebandFilterBandwidth(hz int) error
	SetAmpEnable(value bool) error
	SetLNAGain(value int) error
	SetVGAGain(value int) error
	SetTXVGAGain(value int) error
	StartRX(cb stream.Callback) error
	StopRX() error
	StartTX(cb stream.Callback) error
	StopTX() error
	IsStreaming() bool
	Close() error
}

var (
	_ radio = (*hackrf.Device)(nil)
	_ radio = (*sim.Device)(nil)
)

// env is bound into every command's Run.
type env struct {
	log   nats.Logger
	radio RadioFlags
	reg   *prometheus.Registry
}

type openRadio struct {
	radio
	source string
	// filterFor picks a baseband filter for a sample rate.
	filterFor func(rate float64) int
	release   func()
}

func (e *env) open() (*openRadio, error) {
	if e.radio.Simulate {
		dev := sim.New(sim.Config{}, e.log)
		if err := e.reg.Register(dev.Dispatcher().Metrics()); err != nil {
			return nil, err
		}
		return &openRadio{
			radio:     dev,
			source:    "sim",
			filterFor: func(rate float64) int { return int(rate * 0.75) },
			release:   func() { dev.Close() },
		}, nil
	}

	hackrf.SetLogger(e.log)
	if err := hackrf.Init(); err != nil {
		return nil, fmt.Errorf("init libhackrf: %w", err)
	}
	var (
		dev *hackrf.Device
		err error
	)
	if e.radio.Serial != "" {
		dev, err = hackrf.OpenBySerial(e.radio.Serial)
	} else {
		dev, err = hackrf.Open()
	}
	if err != nil {
		hackrf.Exit()
		return nil, fmt.Errorf("open hackrf: %w", err)
	}
	if err := e.reg.Register(hackrf.Collector()); err != nil {
		dev.Close()
		hackrf.Exit()
		return nil, err
	}
	source := "hackrf"
	if e.radio.Serial != "" {
		source += ":" + e.radio.Serial
	}
	return &openRadio{
		radio:  dev,
		source: source,
		filterFor: func(rate float64) int {
			return hackrf.ComputeBasebandFilterBW(int(rate * 0.75))
		},
		release: func() {
			if err := dev.Close(); err != nil {
				e.log.Warnf("closing hackrf: %v", err)
			}
			hackrf.Exit()
		},
	}, nil
}

func (r *openRadio) Close() error {
	r.release()
	return nil
}

// Tuning is shared by the streaming commands.
type Tuning struct {
	Freq           uint64  `short:"f" help:"Centre frequency in Hz." default:"100000000" env:"HACKRF_FREQ"`
	SampleRate     float64 `short:"s" help:"Sample rate in Hz." default:"10000000" env:"HACKRF_SAMPLE_RATE"`
	BasebandFilter int     `help:"Baseband filter bandwidth in Hz; 0 derives it from the sample rate."`
	Amp            bool    `help:"Enable the RF amplifier."`
}

func (t Tuning) apply(r *openRadio) error {
	if err := r.SetSampleRate(t.SampleRate); err != nil {
		return fmt.Errorf("sample rate %.0f: %w", t.SampleRate, err)
	}
	bw := t.BasebandFilter
	if bw == 0 {
		bw = r.filterFor(t.SampleRate)
	}
	if err := r.SetBasebandFilterBandwidth(bw); err != nil {
		return fmt.Errorf("baseband filter %d: %w", bw, err)
	}
	if err := r.SetFreq(t.Freq); err != nil {
		return fmt.Errorf("frequency %d: %w", t.Freq, err)
	}
	if err := r.SetAmpEnable(t.Amp); err != nil {
		return fmt.Errorf("amp: %w", err)
	}
	return nil
}
