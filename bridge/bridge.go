// Package bridge routes driver sample-block callbacks to a single dispatch
// function.
//
// A driver such as libhackrf wants one callback per transfer direction, each
// taking a transfer descriptor and returning a status. Bridge provides that
// pair of entry points and forwards both to one injected Dispatcher, tagging
// each call with its Direction. The bridge keeps no state between calls and
// never looks at the descriptor or the returned status.
package bridge

import "fmt"

// Direction tags which entry point a call arrived on. The numeric values match
// the tag passed across the native boundary and must not change.
type Direction int

const (
	Receive  Direction = 0
	Transmit Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Receive:
		return "rx"
	case Transmit:
		return "tx"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Status codes understood by the driver. Any non-zero return ends the stream.
const (
	Continue = 0
	Stop     = -1
)

// Dispatcher is the single entry point both trampolines forward to. It is
// called on a driver owned thread and must return promptly.
type Dispatcher[T any] interface {
	Dispatch(transfer T, dir Direction) int
}

// DispatchFunc adapts an ordinary function to Dispatcher.
type DispatchFunc[T any] func(transfer T, dir Direction) int

func (f DispatchFunc[T]) Dispatch(transfer T, dir Direction) int {
	return f(transfer, dir)
}

// EntryPoint is one trampoline. Its address is what gets registered with a
// driver.
type EntryPoint[T any] struct {
	dir Direction
	d   Dispatcher[T]
}

// Call forwards transfer to the dispatcher and returns its status unchanged.
func (e *EntryPoint[T]) Call(transfer T) int {
	return e.d.Dispatch(transfer, e.dir)
}

func (e *EntryPoint[T]) Direction() Direction {
	return e.dir
}

// Bridge holds the receive and transmit entry points. Both are fixed at New.
type Bridge[T any] struct {
	rx EntryPoint[T]
	tx EntryPoint[T]
}

// New binds both entry points to d. A nil dispatcher is a wiring error and
// panics.
func New[T any](d Dispatcher[T]) *Bridge[T] {
	if d == nil {
		panic("bridge: nil dispatcher")
	}
	return &Bridge[T]{
		rx: EntryPoint[T]{dir: Receive, d: d},
		tx: EntryPoint[T]{dir: Transmit, d: d},
	}
}

// ReceiveEntryPoint is invoked when a filled receive buffer is available.
func (b *Bridge[T]) ReceiveEntryPoint(transfer T) int {
	return b.rx.Call(transfer)
}

// TransmitEntryPoint is invoked when the driver needs a buffer to transmit.
func (b *Bridge[T]) TransmitEntryPoint(transfer T) int {
	return b.tx.Call(transfer)
}

func (b *Bridge[T]) ResolveReceiveCallback() *EntryPoint[T] {
	return &b.rx
}

func (b *Bridge[T]) ResolveTransmitCallback() *EntryPoint[T] {
	return &b.tx
}

// Resolve returns the entry point for dir, or nil for an unknown direction.
func (b *Bridge[T]) Resolve(dir Direction) *EntryPoint[T] {
	switch dir {
	case Receive:
		return &b.rx
	case Transmit:
		return &b.tx
	}
	return nil
}
