package fl

import (
	"context"

	"gonum.org/v1/gonum/floats"
)

var _ Averager = (*MeanAverager)(nil)

// MeanAverager checkpoints the elementwise mean of the diffs. The base
// only fixes the expected shape.
type MeanAverager struct{}

func NewMeanAverager() Averager {
	return &MeanAverager{}
}

func (m *MeanAverager) Average(_ context.Context, base Params, diffs []Params) (Params, error) {
	if len(diffs) == 0 {
		return nil, ErrNoUpdates
	}

	sum := make(Params, len(base))
	for i := range base {
		sum[i] = make([]float64, len(base[i]))
	}

	for _, d := range diffs {
		if !SameShape(base, d) {
			return nil, ErrShapeMismatch
		}
		for i := range d {
			floats.Add(sum[i], d[i])
		}
	}

	scale := 1 / float64(len(diffs))
	for i := range sum {
		floats.Scale(scale, sum[i])
	}

	return sum, nil
}
