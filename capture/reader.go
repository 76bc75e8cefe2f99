package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/ipc"
	"github.com/apache/arrow/go/v10/arrow/memory"
)

// Reader iterates the blocks of a capture file.
type Reader struct {
	f   *ipc.FileReader
	md  Metadata
	rec arrow.Record
	idx int
	row int
}

func NewReader(r ipc.ReadAtSeeker) (*Reader, error) {
	f, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	schema := f.Schema()
	if !hasCaptureFields(schema) {
		f.Close()
		return nil, ErrFormat
	}
	md := schema.Metadata()
	i := md.FindKey(metadataKey)
	if i < 0 {
		f.Close()
		return nil, ErrFormat
	}
	m, err := UnmarshalMetadata([]byte(md.Values()[i]))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, md: m}, nil
}

func (r *Reader) Metadata() Metadata {
	return r.md
}

// Next returns the next block or io.EOF. The returned samples are a copy.
func (r *Reader) Next() (Block, error) {
	for r.rec == nil || int64(r.row) >= r.rec.NumRows() {
		if r.idx >= r.f.NumRecords() {
			return Block{}, io.EOF
		}
		rec, err := r.f.Record(r.idx)
		if err != nil {
			return Block{}, fmt.Errorf("capture: reading record %d: %w", r.idx, err)
		}
		r.rec = rec
		r.idx++
		r.row = 0
	}

	seq := r.rec.Column(0).(*array.Uint64).Value(r.row)
	ts := r.rec.Column(1).(*array.Int64).Value(r.row)
	raw := r.rec.Column(2).(*array.Binary).Value(r.row)
	r.row++

	// The record's buffers are reused by the next Record call.
	samples := make([]byte, len(raw))
	copy(samples, raw)
	return Block{Seq: seq, Time: time.Unix(0, ts), Samples: samples}, nil
}

// Rewind restarts iteration at the first block.
func (r *Reader) Rewind() {
	r.rec = nil
	r.idx = 0
	r.row = 0
}

func (r *Reader) Close() error {
	r.rec = nil
	return r.f.Close()
}

func hasCaptureFields(schema *arrow.Schema) bool {
	got := schema.Fields()
	if len(got) != len(fields) {
		return false
	}
	for i, f := range fields {
		if got[i].Name != f.Name || !arrow.TypeEqual(got[i].Type, f.Type) {
			return false
		}
	}
	return true
}
