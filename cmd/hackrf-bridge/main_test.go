package main

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronowave/hackrf-bridge/capture"
	"github.com/chronowave/hackrf-bridge/stream"
)

func TestParseCapture(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{"--simulate", "capture", "-f", "433920000", "--limit", "2MB", "out.arrow"})
	require.NoError(t, err)
	assert.Equal(t, "capture <output>", ctx.Command())
	assert.True(t, cli.Radio.Simulate)
	assert.Equal(t, uint64(433920000), cli.Capture.Freq)
	assert.Equal(t, 10e6, cli.Capture.SampleRate)
	assert.Equal(t, 16, cli.Capture.LNAGain)
	assert.Equal(t, "2MB", cli.Capture.Limit)
	assert.Equal(t, "info", cli.Log.Level)
	assert.True(t, cli.Log.Time)
}

func TestConfigCandidatePaths(t *testing.T) {
	j, y, tm := configCandidatePaths("/etc/radio.yml")
	require.NotEmpty(t, y)
	assert.Equal(t, "/etc/radio.yml", y[0])
	assert.Len(t, j, 1)
	assert.Len(t, tm, 1)

	j, _, _ = configCandidatePaths("/etc/radio.conf")
	assert.Equal(t, "/etc/radio.conf", j[0])

	_, _, tm = configCandidatePaths("")
	assert.Equal(t, "hackrf-bridge.toml", filepath.Base(tm[0]))
}

func TestFindUserConfig(t *testing.T) {
	t.Setenv("HACKRF_CONFIG", "")
	assert.Equal(t, "a.toml", findUserConfig([]string{"info", "--config=a.toml"}))
	assert.Equal(t, "b.json", findUserConfig([]string{"--config", "b.json", "info"}))
	assert.Equal(t, "", findUserConfig([]string{"info"}))

	t.Setenv("HACKRF_CONFIG", "c.yaml")
	assert.Equal(t, "c.yaml", findUserConfig([]string{"info"}))
}

func TestStopNotifier(t *testing.T) {
	calls := 0
	stopped, cb := stopNotifier(func([]byte) error {
		calls++
		if calls >= 2 {
			return stream.ErrStop
		}
		return nil
	})
	require.NoError(t, cb(nil))
	select {
	case <-stopped:
		t.Fatal("closed early")
	default:
	}
	assert.ErrorIs(t, cb(nil), stream.ErrStop)
	assert.ErrorIs(t, cb(nil), stream.ErrStop)
	<-stopped
}

type fakeStreamer struct {
	live atomic.Bool
}

func (f *fakeStreamer) IsStreaming() bool {
	return f.live.Load()
}

func TestWaitReturnsWhenDriverEndsStream(t *testing.T) {
	defer func(d time.Duration) { streamPoll = d }(streamPoll)
	streamPoll = time.Millisecond

	r := &fakeStreamer{}
	r.live.Store(true)
	returned := make(chan struct{})
	go func() {
		// No duration and no callback stop: only the driver can end it.
		wait(0, make(chan struct{}), r)
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("wait returned while streaming")
	case <-time.After(20 * time.Millisecond):
	}
	r.live.Store(false)
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not notice the stream ended")
	}
}

func simEnv() *env {
	return &env{
		log:   stream.NopLogger{},
		radio: RadioFlags{Simulate: true},
		reg:   prometheus.NewRegistry(),
	}
}

func TestCaptureAndReplaySimulated(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tone.arrow")

	c := &CaptureCmd{
		Tuning:   Tuning{Freq: 433920000, SampleRate: 8e6},
		LNAGain:  16,
		VGAGain:  20,
		Limit:    "1MiB",
		Duration: 10 * time.Second,
		Batch:    2,
		Queue:    64,
		Output:   out,
	}
	require.NoError(t, c.Run(simEnv()))

	f, err := os.Open(out)
	require.NoError(t, err)
	rd, err := capture.NewReader(f)
	require.NoError(t, err)
	md := rd.Metadata()
	assert.Equal(t, uint64(433920000), md.CenterFreq)
	assert.Equal(t, 8e6, md.SampleRate)
	assert.Equal(t, "sim", md.Source)
	total := 0
	for {
		b, err := rd.Next()
		if err != nil {
			break
		}
		total += len(b.Samples)
	}
	require.NoError(t, rd.Close())
	require.NoError(t, f.Close())
	assert.Equal(t, 1<<20, total)

	r := &ReplayCmd{Duration: 10 * time.Second, Queue: 64, Input: out}
	require.NoError(t, r.Run(simEnv()))
}

func TestCaptureRejectsBadLimit(t *testing.T) {
	c := &CaptureCmd{Limit: "lots", Output: filepath.Join(t.TempDir(), "x.arrow")}
	err := c.Run(simEnv())
	require.Error(t, err)
	assert.False(t, errors.Is(err, stream.ErrStop))
}
