package stream_test

import (
	"errors"
	"fmt"
	"runtime/cgo"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronowave/hackrf-bridge/bridge"
	"github.com/chronowave/hackrf-bridge/stream"
)

type fakeTransfer struct {
	buf   []byte
	rxCtx uintptr
	txCtx uintptr
}

func (f *fakeTransfer) Samples() []byte { return f.buf }

func (f *fakeTransfer) Context(dir bridge.Direction) uintptr {
	if dir == bridge.Transmit {
		return f.txCtx
	}
	return f.rxCtx
}

type recordingLogger struct {
	stream.NopLogger
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Errorf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, v...))
}

func TestDispatchReceive(t *testing.T) {
	d := stream.NewDispatcher[*fakeTransfer]()
	var got []byte
	s := d.Register(func(buf []byte) error {
		got = append(got, buf...)
		return nil
	}, bridge.Receive)
	defer s.Close()

	tr := &fakeTransfer{buf: []byte{1, 2, 3, 4}, rxCtx: s.Handle()}
	assert.Equal(t, bridge.Continue, d.Dispatch(tr, bridge.Receive))
	assert.Equal(t, bridge.Continue, d.Dispatch(tr, bridge.Receive))

	assert.Equal(t, []byte{1, 2, 3, 4, 1, 2, 3, 4}, got)
	assert.Equal(t, 2.0, testutil.ToFloat64(d.Metrics().Transfers(bridge.Receive)))
	assert.Equal(t, 8.0, testutil.ToFloat64(d.Metrics().Bytes(bridge.Receive)))
}

func TestDispatchTransmitFillsBuffer(t *testing.T) {
	d := stream.NewDispatcher[*fakeTransfer]()
	s := d.Register(func(buf []byte) error {
		for i := range buf {
			buf[i] = 0x7f
		}
		return nil
	}, bridge.Transmit)
	defer s.Close()

	tr := &fakeTransfer{buf: make([]byte, 16), txCtx: s.Handle()}
	require.Equal(t, bridge.Continue, d.Dispatch(tr, bridge.Transmit))
	for _, b := range tr.buf {
		assert.Equal(t, byte(0x7f), b)
	}
}

func TestDispatchStopsOnCallbackError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{"stop requested", stream.ErrStop, "stopped"},
		{"wrapped stop", fmt.Errorf("limit reached: %w", stream.ErrStop), "stopped"},
		{"failure", errors.New("disk full"), "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := stream.NewDispatcher[*fakeTransfer]()
			calls := 0
			s := d.Register(func(buf []byte) error {
				calls++
				return tc.err
			}, bridge.Receive)
			defer s.Close()

			tr := &fakeTransfer{buf: []byte{0}, rxCtx: s.Handle()}
			assert.Equal(t, bridge.Stop, d.Dispatch(tr, bridge.Receive))
			<-s.Done()
			assert.ErrorIs(t, s.Err(), tc.err)

			// Late transfers after the stop never reach the callback.
			assert.Equal(t, bridge.Stop, d.Dispatch(tr, bridge.Receive))
			assert.Equal(t, 1, calls)
			assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics().Stops(bridge.Receive, tc.reason)))
			assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics().Stops(bridge.Receive, "closed")))
		})
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := stream.NewDispatcher[*fakeTransfer]()
	log := &recordingLogger{}
	d.SetLogger(log)
	s := d.Register(func(buf []byte) error {
		panic("boom")
	}, bridge.Receive)
	defer s.Close()

	tr := &fakeTransfer{buf: []byte{0}, rxCtx: s.Handle()}
	assert.Equal(t, bridge.Stop, d.Dispatch(tr, bridge.Receive))
	assert.ErrorContains(t, s.Err(), "boom")
	require.Len(t, log.errors, 1)
	assert.Contains(t, log.errors[0], "rx callback panicked")
	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics().Stops(bridge.Receive, "panic")))
}

func TestDispatchRejectsBadContext(t *testing.T) {
	d := stream.NewDispatcher[*fakeTransfer]()
	unregistered := func() float64 {
		return testutil.ToFloat64(d.Metrics().Stops(bridge.Receive, "unregistered"))
	}

	t.Run("zero", func(t *testing.T) {
		before := unregistered()
		assert.Equal(t, bridge.Stop, d.Dispatch(&fakeTransfer{}, bridge.Receive))
		assert.Equal(t, before+1, unregistered())
	})

	t.Run("closed session", func(t *testing.T) {
		s := d.Register(func([]byte) error { return nil }, bridge.Receive)
		h := s.Handle()
		s.Close()
		s.Close()
		before := unregistered()
		assert.Equal(t, bridge.Stop, d.Dispatch(&fakeTransfer{rxCtx: h}, bridge.Receive))
		assert.Equal(t, before+1, unregistered())
		assert.NoError(t, s.Err())
	})

	t.Run("foreign handle value", func(t *testing.T) {
		h := cgo.NewHandle("not a session")
		defer h.Delete()
		before := unregistered()
		assert.Equal(t, bridge.Stop, d.Dispatch(&fakeTransfer{rxCtx: uintptr(h)}, bridge.Receive))
		assert.Equal(t, before+1, unregistered())
	})

	t.Run("wrong direction", func(t *testing.T) {
		s := d.Register(func([]byte) error { return nil }, bridge.Transmit)
		defer s.Close()
		assert.Equal(t, bridge.Stop, d.Dispatch(&fakeTransfer{rxCtx: s.Handle()}, bridge.Receive))
		assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics().Stops(bridge.Receive, "direction")))
	})

	assert.Equal(t, 0.0, testutil.ToFloat64(d.Metrics().Transfers(bridge.Receive)))
}

func TestDispatchThroughBridge(t *testing.T) {
	d := stream.NewDispatcher[*fakeTransfer]()
	b := bridge.New[*fakeTransfer](d)

	var rxN, txN int
	rx := d.Register(func(buf []byte) error { rxN += len(buf); return nil }, bridge.Receive)
	defer rx.Close()
	tx := d.Register(func(buf []byte) error { txN += len(buf); return nil }, bridge.Transmit)
	defer tx.Close()

	tr := &fakeTransfer{buf: make([]byte, 10), rxCtx: rx.Handle(), txCtx: tx.Handle()}
	assert.Equal(t, bridge.Continue, b.ReceiveEntryPoint(tr))
	assert.Equal(t, bridge.Continue, b.TransmitEntryPoint(tr))
	assert.Equal(t, bridge.Continue, b.TransmitEntryPoint(tr))
	assert.Equal(t, 10, rxN)
	assert.Equal(t, 20, txN)
}

func TestMetricsRegister(t *testing.T) {
	d := stream.NewDispatcher[*fakeTransfer]()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(d.Metrics()))

	s := d.Register(func([]byte) error { return nil }, bridge.Transmit)
	defer s.Close()
	d.Dispatch(&fakeTransfer{buf: make([]byte, 3), txCtx: s.Handle()}, bridge.Transmit)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			names[mf.GetName()] += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, names["hackrf_transfers_total"])
	assert.Equal(t, 3.0, names["hackrf_transfer_bytes_total"])
}
