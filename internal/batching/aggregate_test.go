package batching

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/23skdu/longbow-sieve/internal/device"
	"github.com/23skdu/longbow-sieve/internal/logger"
	"github.com/23skdu/longbow-sieve/internal/metrics"
)

// recorder is a metric func that remembers every width it was asked for and
// returns a constant per-example value.
type recorder struct {
	bsz    int
	dev    device.Device
	value  float32
	widths []int
}

func (r *recorder) metric(width int) (*device.Tensor, error) {
	r.widths = append(r.widths, width)
	data := make([]float32, r.bsz)
	for i := range data {
		data[i] = r.value
	}
	t, err := device.NewTensorOn(r.dev, "metric", data)
	return t, err
}

func sum(xs []int) int {
	s := 0
	for _, x := range xs {
		s += x
	}
	return s
}

func inputs(t testing.TB, bsz int, dev device.Device) []*device.Tensor {
	x, err := device.NewTensorOn(dev, "x", make([]float32, bsz*3), bsz, 3)
	if err != nil {
		t.Fatal(err)
	}
	y, err := device.NewTensorOn(dev, "y", make([]float32, bsz), bsz)
	if err != nil {
		t.Fatal(err)
	}
	return []*device.Tensor{x, y}
}

func TestDivideAndAggregateScenarios(t *testing.T) {
	tests := []struct {
		name       string
		bsz        int
		nSamples   int
		cap        *int
		wantWidths []int
		wantWarn   bool
	}{
		{"even split", 2, 10, intPtr(5), []int{2, 2, 2, 2, 2}, false},
		{"cap below batch", 2, 10, intPtr(1), []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, true},
		{"cap above range", 3, 4, intPtr(20), []int{4}, true},
		{"no cap", 3, 7, nil, []int{7}, false},
		{"ragged tail", 2, 10, intPtr(8), []int{4, 4, 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := capturingLogger()
			rec := &recorder{bsz: tt.bsz, dev: device.CPU, value: 1.5}

			opts := []Option{WithLogger(log)}
			if tt.cap != nil {
				opts = append(opts, WithMaxExamplesPerBatch(*tt.cap))
			}
			got, err := DivideAndAggregate(inputs(t, tt.bsz, device.CPU), tt.nSamples, rec.metric, opts...)
			require.NoError(t, err)

			assert.Equal(t, tt.wantWidths, rec.widths)
			assert.Equal(t, tt.nSamples, sum(rec.widths))
			assert.Equal(t, tt.wantWarn, warnings(buf) == 1)
			assert.LessOrEqual(t, warnings(buf), 1)

			require.Equal(t, []int{tt.bsz}, got.Dims())
			for i, v := range got.Data() {
				assert.InDelta(t, 1.5*float64(len(tt.wantWidths)), v, 1e-5, "example %d", i)
			}
		})
	}
}

func TestDivideAndAggregateCopiesDevice(t *testing.T) {
	gpu := device.Device{ID: 1, Kind: "cuda"}
	rec := &recorder{bsz: 4, dev: gpu, value: 1}

	got, err := DivideAndAggregate(inputs(t, 4, gpu), 3, rec.metric, WithLogger(logger.Nop()))
	require.NoError(t, err)
	assert.Equal(t, gpu, got.Device())
}

func TestDivideAndAggregateMaxAgg(t *testing.T) {
	calls := 0
	metric := func(width int) (*device.Tensor, error) {
		calls++
		return device.NewTensor("m", []float32{float32(calls), float32(10 - calls)}), nil
	}

	got, err := DivideAndAggregate(inputs(t, 2, device.CPU), 6, metric,
		WithMaxExamplesPerBatch(4),
		WithAggregator(MaxAgg),
		WithLogger(logger.Nop()),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []float32{3, 9}, got.Data())
}

func TestDivideAndAggregateArgumentErrors(t *testing.T) {
	rec := &recorder{bsz: 2, dev: device.CPU}

	_, err := DivideAndAggregate(nil, 4, rec.metric)
	assert.ErrorIs(t, err, ErrNoInputs)

	empty := []*device.Tensor{device.NewTensor("e", nil)}
	_, err = DivideAndAggregate(empty, 4, rec.metric)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)

	_, err = DivideAndAggregate(inputs(t, 2, device.CPU), 0, rec.metric)
	assert.ErrorIs(t, err, ErrInvalidSamples)

	_, err = DivideAndAggregate(inputs(t, 2, device.CPU), 4, nil)
	assert.ErrorIs(t, err, ErrNilMetric)

	assert.Empty(t, rec.widths)
}

func TestAggregatePropagatesMetricError(t *testing.T) {
	boom := errors.New("out of memory")
	calls := 0
	metric := func(width int) (*device.Tensor, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return device.NewTensor("m", []float32{1, 1}), nil
	}

	got, err := Aggregate(2, 10, 3, device.CPU, metric, AddAgg)
	assert.Nil(t, got)
	assert.Same(t, boom, err)
	assert.Equal(t, 2, calls)
}

func TestAggregatePropagatesAggError(t *testing.T) {
	metric := func(width int) (*device.Tensor, error) {
		// wrong length for bsz=2
		return device.NewTensor("m", []float32{1, 2, 3}), nil
	}

	_, err := Aggregate(2, 4, 2, device.CPU, metric, AddAgg)
	assert.ErrorIs(t, err, device.ErrShapeMismatch)
}

func TestAggregateNilMetricResult(t *testing.T) {
	metric := func(width int) (*device.Tensor, error) {
		return nil, nil
	}

	got, err := Aggregate(2, 4, 2, device.CPU, metric, AddAgg)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, device.ErrShapeMismatch)
}

func TestDivideAndAggregateNilMetricIsValidationError(t *testing.T) {
	before := testutil.ToFloat64(metrics.ValidationErrors.WithLabelValues("divide_and_aggregate", "nil_metric"))
	log, buf := capturingLogger()

	_, err := DivideAndAggregate(inputs(t, 2, device.CPU), 10, nil,
		WithMaxExamplesPerBatch(1), WithLogger(log))
	assert.ErrorIs(t, err, ErrNilMetric)

	after := testutil.ToFloat64(metrics.ValidationErrors.WithLabelValues("divide_and_aggregate", "nil_metric"))
	assert.Equal(t, float64(1), after-before)
	// rejected before the chunk width is resolved
	assert.Equal(t, 0, warnings(buf))
}

func TestAggregateRejectsZeroWidth(t *testing.T) {
	rec := &recorder{bsz: 1, dev: device.CPU}
	_, err := Aggregate(1, 5, 0, device.CPU, rec.metric, nil)
	assert.ErrorIs(t, err, ErrInvalidChunkWidth)
}

func TestAggregateDoesNotMutateInputs(t *testing.T) {
	in := inputs(t, 2, device.CPU)
	in[0].Data()[0] = 42

	rec := &recorder{bsz: 2, dev: device.CPU, value: 1}
	_, err := DivideAndAggregate(in, 5, rec.metric, WithMaxExamplesPerBatch(4), WithLogger(logger.Nop()))
	require.NoError(t, err)
	assert.Equal(t, float32(42), in[0].Data()[0])
}

func TestPlan(t *testing.T) {
	widths, err := Plan(10, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 3, 1}, widths)

	widths, err = Plan(1, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, widths)

	_, err = Plan(0, 1)
	assert.ErrorIs(t, err, ErrInvalidSamples)
	_, err = Plan(3, 0)
	assert.ErrorIs(t, err, ErrInvalidChunkWidth)
}

func TestAggregateCoverageProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		bsz := rapid.IntRange(1, 8).Draw(rt, "bsz")
		n := rapid.IntRange(1, 300).Draw(rt, "nSamples")
		w := rapid.IntRange(1, n).Draw(rt, "chunkWidth")
		v := float32(rapid.IntRange(-5, 5).Draw(rt, "value"))

		rec := &recorder{bsz: bsz, dev: device.CPU, value: v}
		got, err := Aggregate(bsz, n, w, device.CPU, rec.metric, AddAgg)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}

		iters := (n + w - 1) / w
		if len(rec.widths) != iters {
			rt.Fatalf("expected %d iterations, got %d", iters, len(rec.widths))
		}
		if s := sum(rec.widths); s != n {
			rt.Fatalf("widths sum to %d, want %d", s, n)
		}
		for i, cw := range rec.widths {
			if cw < 1 || cw > w {
				rt.Fatalf("width %d at %d outside [1, %d]", cw, i, w)
			}
			if i < len(rec.widths)-1 && cw != w {
				rt.Fatalf("only the last chunk may shrink, got %v", rec.widths)
			}
		}
		for i, x := range got.Data() {
			if x != v*float32(iters) {
				rt.Fatalf("example %d: got %f, want %f", i, x, v*float32(iters))
			}
		}

		plan, err := Plan(n, w)
		if err != nil {
			rt.Fatal(err)
		}
		if len(plan) != len(rec.widths) {
			rt.Fatalf("plan %v differs from executed %v", plan, rec.widths)
		}
		for i := range plan {
			if plan[i] != rec.widths[i] {
				rt.Fatalf("plan %v differs from executed %v", plan, rec.widths)
			}
		}
	})
}

func TestAggByName(t *testing.T) {
	for _, name := range []string{"", "sum", "add", "max"} {
		fn, ok := AggByName(name)
		assert.True(t, ok, name)
		assert.NotNil(t, fn, name)
	}
	_, ok := AggByName("median")
	assert.False(t, ok)
}
