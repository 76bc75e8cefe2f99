package hackrf

// #include <libhackrf/hackrf.h>
// #include "exports.h"
import "C"

import (
	"unsafe"

	nats "github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chronowave/hackrf-bridge/bridge"
	"github.com/chronowave/hackrf-bridge/stream"
)

// Callback receives (rx) or fills (tx) one block of interleaved signed 8-bit
// I/Q samples. It runs on a libhackrf thread; returning an error stops the
// stream.
type Callback = stream.Callback

// transfer gives hackrf_transfer the stream.Transfer view.
type transfer C.hackrf_transfer

func (t *transfer) Samples() []byte {
	n := int(t.valid_length)
	if t.buffer == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(t.buffer)), n)
}

func (t *transfer) Context(dir bridge.Direction) uintptr {
	if dir == bridge.Transmit {
		return uintptr(t.tx_ctx)
	}
	return uintptr(t.rx_ctx)
}

// dispatcher serves every device in the process. It is built once and never
// replaced; the C trampolines reach it through hackrfDispatch.
var dispatcher = stream.NewDispatcher[*transfer]()

var _ bridge.Dispatcher[*transfer] = dispatcher

//export hackrfDispatch
func hackrfDispatch(t *C.hackrf_transfer, tx C.int) C.int {
	return C.int(dispatcher.Dispatch((*transfer)(t), bridge.Direction(tx)))
}

// ResolveReceiveCallback returns the address of the native receive
// trampoline, the hackrf_sample_block_cb_fn StartRX registers.
func ResolveReceiveCallback() unsafe.Pointer {
	return unsafe.Pointer(C.rxCBPtr)
}

// ResolveTransmitCallback returns the address of the native transmit
// trampoline.
func ResolveTransmitCallback() unsafe.Pointer {
	return unsafe.Pointer(C.txCBPtr)
}

func rxCallback() C.hackrf_sample_block_cb_fn {
	return (C.hackrf_sample_block_cb_fn)(ResolveReceiveCallback())
}

func txCallback() C.hackrf_sample_block_cb_fn {
	return (C.hackrf_sample_block_cb_fn)(ResolveTransmitCallback())
}

// SetLogger directs stream diagnostics to l. nil discards them.
func SetLogger(l nats.Logger) {
	dispatcher.SetLogger(l)
}

// Collector exposes transfer and stop counters for all devices.
func Collector() prometheus.Collector {
	return dispatcher.Metrics()
}
