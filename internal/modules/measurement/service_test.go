package measurement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mpmeasure/internal/workers"
)

func newTestService(available uint64, probeErr error) *Service {
	settings := Settings{
		Eps:            testEps,
		Method:         MethodAuto,
		NGroup:         2,
		PMPSImpl:       PMPSDefault,
		MemoryFraction: 0.5,
		Seed:           7,
	}
	probe := func() (uint64, error) { return available, probeErr }
	return NewService(DefaultCatalog(), workers.NewWorkerPool(2), settings, probe, zerolog.Nop())
}

func TestService_PMF(t *testing.T) {
	svc := newTestService(1<<30, nil)
	members, err := svc.PMF(context.Background(), PMFRequest{
		State: StateSpec{Mode: ModePMPS, Sites: 3, Dim: 2, Ancilla: 2, Rank: 2, Seed: 3},
		POVM:  POVMSpec{Name: "pauli", Width: 2, Layout: LayoutBlock},
	})
	require.NoError(t, err)
	require.Len(t, members, 2)
	for _, m := range members {
		assert.Equal(t, []int{6, 6}, m.Shape)
		sum := 0.0
		for _, v := range m.PMF {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-10)
	}

	_, err = svc.PMF(context.Background(), PMFRequest{
		State: StateSpec{Mode: ModeMPS, Sites: 2, Dim: 2, Seed: 1},
		POVM:  POVMSpec{Name: "sic", Width: 1},
	})
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestService_MethodFollowsMemory(t *testing.T) {
	spec := POVMSpec{Name: "pauli", Width: 3, Layout: LayoutRepeat}
	state := StateSpec{Mode: ModeMPS, Sites: 3, Dim: 2, Rank: 2, Seed: 5}

	// 216 outcomes need more than the 50 allowed by 2400 bytes at half use.
	small := newTestService(2400, nil)
	res, err := small.Sample(context.Background(), SampleRequest{State: state, POVM: spec, Samples: 10})
	require.NoError(t, err)
	assert.Equal(t, MethodCond, res.Method)

	large := newTestService(1<<30, nil)
	res, err = large.Sample(context.Background(), SampleRequest{State: state, POVM: spec, Samples: 10})
	require.NoError(t, err)
	assert.Equal(t, MethodDirect, res.Method)

	failing := newTestService(0, errors.New("no procfs"))
	assert.Equal(t, DirectOutcomeLimit, failing.directLimit())
}

func TestService_SamplePacked(t *testing.T) {
	svc := newTestService(1<<30, nil)
	req := SampleRequest{
		State:   StateSpec{Mode: ModeMPDO, Sites: 3, Dim: 2, Rank: 2, Seed: 9},
		POVM:    POVMSpec{Name: "pauli", Width: 2, Layout: LayoutBlock},
		Samples: 25,
		Seed:    11,
	}
	plain, err := svc.Sample(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, plain.Samples, 2)
	assert.Equal(t, [][]int{{6, 6}, {6, 6}}, plain.Dims)
	assert.Equal(t, ModeMPDO, plain.StateMode)

	req.Pack = true
	packed, err := svc.Sample(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, packed.Samples)
	unpacked, err := packed.List.UnpackSamples(packed.Packed)
	require.NoError(t, err)
	assert.Equal(t, plain.Samples, Outcomes(unpacked))
}

func TestService_SampleStream(t *testing.T) {
	svc := newTestService(1<<30, nil)
	req := SampleRequest{
		State:   StateSpec{Mode: ModeMPS, Sites: 2, Dim: 2, Rank: 2, Seed: 2},
		POVM:    POVMSpec{Name: "z", Width: 2},
		Samples: 23,
		Seed:    5,
	}

	var sizes []int
	err := svc.SampleStream(context.Background(), req, 10, func(b SampleBatch) error {
		assert.Equal(t, len(sizes), b.Index)
		require.Len(t, b.Samples, 1)
		sizes = append(sizes, len(b.Samples[0]))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 10, 3}, sizes)

	stop := errors.New("client gone")
	calls := 0
	err = svc.SampleStream(context.Background(), req, 10, func(SampleBatch) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	assert.ErrorIs(t, svc.SampleStream(context.Background(), req, 0, nil), ErrDimensionMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.SampleStream(ctx, req, 10, func(SampleBatch) error { return nil }), context.Canceled)
}

func TestService_Estimate(t *testing.T) {
	svc := newTestService(1<<30, nil)
	target := POVMSpec{Name: "pauli", Width: 2, Layout: LayoutBlock}
	req := EstimateRequest{
		State:   StateSpec{Mode: ModeMPS, Sites: 4, Dim: 2, Rank: 2, Seed: 4},
		Source:  POVMSpec{Name: "pauli", Width: 2, Layout: LayoutRepeat, Split: true},
		Target:  target,
		Samples: 100,
	}
	coeff := make([][]float64, 3)
	for i := range coeff {
		coeff[i] = make([]float64, 36)
		for k := range coeff[i] {
			coeff[i][k] = 1.0 / 3
		}
	}
	req.Coeff = coeff

	res, err := svc.Estimate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Members, 3)
	for _, m := range res.Members {
		assert.Equal(t, []int{6, 6}, m.Shape)
		for i, v := range m.PMF {
			assert.True(t, v.Valid, "outcome %d", i)
			assert.Equal(t, 100, m.NSamples[i])
		}
	}
	require.NotNil(t, res.Lfun)
	assert.InDelta(t, 1.0, res.Lfun.Value.Value, 1e-10)
	assert.InDelta(t, 1.0, res.Exact.Value.Value, 1e-10)
}

func TestStateSpec_Build(t *testing.T) {
	_, err := StateSpec{Mode: ModeMPS}.Build()
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = StateSpec{Mode: "tt", Sites: 2, Dim: 2}.Build()
	assert.ErrorIs(t, err, ErrUnsupportedMode)

	s, err := StateSpec{
		Mode: ModeMPS,
		Tensors: []TensorSpec{
			{Shape: []int{1, 2, 1}, Re: []float64{1, 0}},
			{Shape: []int{1, 2, 1}, Re: []float64{0, 0}, Im: []float64{0, 1}},
		},
	}.Build()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, s.Hdims())

	_, err = TensorSpec{Shape: []int{2, 2}, Re: []float64{1}}.Dense()
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestPOVMSpec_Build(t *testing.T) {
	catalog := DefaultCatalog()
	hdims := []int{2, 2, 2, 2}

	l, err := POVMSpec{Name: "x", Width: 2, Start: 1}.Build(catalog, hdims)
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())
	assert.Equal(t, []int{1, 2}, l.Member(0).NsOutPos())

	l, err = POVMSpec{Name: "pauli", Width: 2, Layout: LayoutRepeat, Split: true}.Build(catalog, hdims)
	require.NoError(t, err)
	assert.Equal(t, 9, l.Len())

	_, err = POVMSpec{Name: "x", Split: true}.Build(catalog, hdims)
	assert.ErrorIs(t, err, ErrUnsupportedMode)
	_, err = POVMSpec{Name: "x", Layout: "spiral"}.Build(catalog, hdims)
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestOutcomes_JSON(t *testing.T) {
	o := Outcomes{{{0, 5}, {3, 1}}, {{2}}}
	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.JSONEq(t, `[[[0,5],[3,1]],[[2]]]`, string(data))

	var back Outcomes
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, o, back)

	assert.Error(t, json.Unmarshal([]byte(`[[[256]]]`), &back))
}
