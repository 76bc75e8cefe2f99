// Package capture records sample blocks to Arrow IPC files and plays them
// back.
//
// A capture file holds one row per transfer block with the columns seq,
// timestamp_ns and samples (interleaved signed 8-bit I/Q). The radio settings
// travel in the schema metadata as a serialised protobuf Struct.
package capture

import (
	"errors"
	"io"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/ipc"
	"github.com/apache/arrow/go/v10/arrow/memory"
)

const metadataKey = "hackrf.capture"

const defaultBatch = 16

var (
	ErrClosed = errors.New("capture: writer closed")
	ErrFormat = errors.New("capture: not a sample capture")
)

var fields = []arrow.Field{
	{Name: "seq", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "timestamp_ns", Type: arrow.PrimitiveTypes.Int64},
	{Name: "samples", Type: arrow.BinaryTypes.Binary},
}

// Block is one transfer's worth of samples.
type Block struct {
	Seq     uint64
	Time    time.Time
	Samples []byte
}

// Writer appends blocks to an Arrow IPC file. It is not safe for concurrent
// use; Sink puts it behind a queue.
type Writer struct {
	fw      *ipc.FileWriter
	b       *array.RecordBuilder
	batch   int
	pending int
	seq     uint64
	bytes   uint64
	closed  bool
}

// NewWriter starts an Arrow IPC file at w's current offset. batch is the
// number of blocks per Arrow record; zero picks a default.
func NewWriter(w io.WriteSeeker, md Metadata, batch int) (*Writer, error) {
	enc, err := md.Marshal()
	if err != nil {
		return nil, err
	}
	meta := arrow.NewMetadata([]string{metadataKey}, []string{string(enc)})
	schema := arrow.NewSchema(fields, &meta)

	mem := memory.NewGoAllocator()
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return nil, err
	}
	if batch <= 0 {
		batch = defaultBatch
	}
	return &Writer{
		fw:    fw,
		b:     array.NewRecordBuilder(mem, schema),
		batch: batch,
	}, nil
}

// Write appends one block. samples is copied before Write returns.
func (w *Writer) Write(t time.Time, samples []byte) error {
	if w.closed {
		return ErrClosed
	}
	w.b.Field(0).(*array.Uint64Builder).Append(w.seq)
	w.b.Field(1).(*array.Int64Builder).Append(t.UnixNano())
	w.b.Field(2).(*array.BinaryBuilder).Append(samples)
	w.seq++
	w.bytes += uint64(len(samples))
	w.pending++
	if w.pending >= w.batch {
		return w.Flush()
	}
	return nil
}

// Flush writes buffered blocks as one record.
func (w *Writer) Flush() error {
	if w.pending == 0 {
		return nil
	}
	rec := w.b.NewRecord()
	defer rec.Release()
	w.pending = 0
	return w.fw.Write(rec)
}

// Blocks returns the number of blocks written so far.
func (w *Writer) Blocks() uint64 {
	return w.seq
}

// Bytes returns the number of sample bytes written so far.
func (w *Writer) Bytes() uint64 {
	return w.bytes
}

// Close flushes and writes the file footer. It does not close the underlying
// io.WriteSeeker.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	err := w.Flush()
	w.closed = true
	w.b.Release()
	if cerr := w.fw.Close(); err == nil {
		err = cerr
	}
	return err
}
