// Package arrowio stores per-example aggregation results as Arrow IPC streams.
package arrowio

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

const (
	metaNSamples    = "n_samples"
	metaChunkWidth  = "chunk_width"
	metaAggregation = "aggregation"
	metaDevice      = "device"
)

// Result is one aggregated value per original example plus the parameters
// that produced it.
type Result struct {
	Values      []float32
	NSamples    int
	ChunkWidth  int
	Aggregation string
	Device      string
}

func schemaFor(res Result) *arrow.Schema {
	md := arrow.NewMetadata(
		[]string{metaNSamples, metaChunkWidth, metaAggregation, metaDevice},
		[]string{strconv.Itoa(res.NSamples), strconv.Itoa(res.ChunkWidth), res.Aggregation, res.Device},
	)
	return arrow.NewSchema([]arrow.Field{
		{Name: "example", Type: arrow.PrimitiveTypes.Int64},
		{Name: "value", Type: arrow.PrimitiveTypes.Float32},
	}, &md)
}

// Write encodes res as a single-record IPC stream.
func Write(w io.Writer, res Result, mem memory.Allocator) error {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	schema := schemaFor(res)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	ids := make([]int64, len(res.Values))
	for i := range ids {
		ids[i] = int64(i)
	}
	b.Field(0).(*array.Int64Builder).AppendValues(ids, nil)
	b.Field(1).(*array.Float32Builder).AppendValues(res.Values, nil)

	rec := b.NewRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// Read decodes a stream written by Write. Values from all records are
// concatenated in order.
func Read(r io.Reader, mem memory.Allocator) (Result, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	var res Result

	ir, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return res, fmt.Errorf("failed to open stream: %w", err)
	}
	defer ir.Release()

	if err := parseMetadata(ir.Schema().Metadata(), &res); err != nil {
		return res, err
	}

	for ir.Next() {
		rec := ir.Record()
		col, ok := rec.Column(1).(*array.Float32)
		if !ok {
			return res, fmt.Errorf("value column has type %s", rec.Column(1).DataType())
		}
		res.Values = append(res.Values, col.Float32Values()...)
	}
	if err := ir.Err(); err != nil && err != io.EOF {
		return res, fmt.Errorf("failed to read stream: %w", err)
	}
	return res, nil
}

func parseMetadata(md arrow.Metadata, res *Result) error {
	get := func(key string) string {
		if i := md.FindKey(key); i >= 0 {
			return md.Values()[i]
		}
		return ""
	}
	var err error
	if v := get(metaNSamples); v != "" {
		if res.NSamples, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("bad %s metadata %q: %w", metaNSamples, v, err)
		}
	}
	if v := get(metaChunkWidth); v != "" {
		if res.ChunkWidth, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("bad %s metadata %q: %w", metaChunkWidth, v, err)
		}
	}
	res.Aggregation = get(metaAggregation)
	res.Device = get(metaDevice)
	return nil
}

func WriteFile(path string, res Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, res, nil); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ReadFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, nil)
}
