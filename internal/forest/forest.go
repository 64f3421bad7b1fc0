// Package forest implements a random-forest regressor: bootstrap-aggregated CART trees
// split on variance reduction, averaged at prediction time.
//
// Fitting is deterministic for a given Params.Seed regardless of Params.Workers: every
// tree draws from its own PRNG seeded with (Seed, tree index).
package forest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrDimension signals a row whose width differs from the fitted feature count.
	ErrDimension = errors.New("forest: feature dimension mismatch")
	// ErrCorrupt signals a decoded forest with inconsistent structure.
	ErrCorrupt = errors.New("forest: corrupt model")
)

// Params configures fitting.
type Params struct {
	Trees           int    `json:"trees"`
	Seed            uint64 `json:"seed"`
	MaxDepth        int    `json:"max_depth"`         // 0 = unlimited
	MinSamplesSplit int    `json:"min_samples_split"` // default 2
	MinSamplesLeaf  int    `json:"min_samples_leaf"`  // default 1
	MaxFeatures     int    `json:"max_features"`      // 0 = all features at every split
	Workers         int    `json:"-"`                 // 0 = GOMAXPROCS
}

// WithDefaults fills zero values.
func (p Params) WithDefaults() Params {
	if p.Trees <= 0 {
		p.Trees = 100
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.Workers <= 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	return p
}

// Forest is a fitted ensemble. Exported fields are the serialized form.
type Forest struct {
	Features    []string  `json:"features"`
	Trees       []Tree    `json:"trees"`
	Importances []float64 `json:"importances"`
}

// Tree is a flat, preorder node table. Feature < 0 marks a leaf.
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int32   `json:"left"`
	Right     []int32   `json:"right"`
	Value     []float64 `json:"value"`
}

// Fit grows p.Trees trees on (x, y). Every row of x must have len(features) columns.
func Fit(ctx context.Context, x [][]float64, y []float64, features []string, p Params) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("forest: no training rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("forest: %d rows but %d targets", len(x), len(y))
	}
	for i, row := range x {
		if len(row) != len(features) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimension, i, len(row), len(features))
		}
	}
	p = p.WithDefaults()

	trees := make([]Tree, p.Trees)
	importances := make([][]float64, p.Trees)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for i := range p.Trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			b := newBuilder(x, y, len(features), p, rand.New(rand.NewPCG(p.Seed, uint64(i))))
			trees[i], importances[i] = b.build()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("forest: fit: %w", err)
	}

	names := make([]string, len(features))
	copy(names, features)
	return &Forest{
		Features:    names,
		Trees:       trees,
		Importances: averageImportances(importances, len(features)),
	}, nil
}

// Predict averages the tree outputs for one row.
func (f *Forest) Predict(row []float64) (float64, error) {
	if len(row) != len(f.Features) {
		return 0, fmt.Errorf("%w: got %d values, want %d", ErrDimension, len(row), len(f.Features))
	}
	if len(f.Trees) == 0 {
		return 0, fmt.Errorf("%w: no trees", ErrCorrupt)
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].predict(row)
	}
	return sum / float64(len(f.Trees)), nil
}

// PredictBatch predicts every row of x.
func (f *Forest) PredictBatch(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		v, err := f.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Nodes returns the total node count across all trees.
func (f *Forest) Nodes() int {
	n := 0
	for i := range f.Trees {
		n += len(f.Trees[i].Value)
	}
	return n
}

// Validate checks the structure of a decoded forest so that Predict cannot index out of
// range or loop.
func (f *Forest) Validate() error {
	if len(f.Features) == 0 {
		return fmt.Errorf("%w: no features", ErrCorrupt)
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrCorrupt)
	}
	if len(f.Importances) != 0 && len(f.Importances) != len(f.Features) {
		return fmt.Errorf("%w: %d importances for %d features", ErrCorrupt, len(f.Importances), len(f.Features))
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(len(f.Features)); err != nil {
			return fmt.Errorf("%w: tree %d: %v", ErrCorrupt, i, err)
		}
	}
	return nil
}

func (t *Tree) predict(row []float64) float64 {
	i := int32(0)
	for t.Feature[i] >= 0 {
		if row[t.Feature[i]] <= t.Threshold[i] {
			i = t.Left[i]
		} else {
			i = t.Right[i]
		}
	}
	return t.Value[i]
}

func (t *Tree) validate(nFeatures int) error {
	n := len(t.Value)
	if n == 0 {
		return errors.New("empty tree")
	}
	if len(t.Feature) != n || len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n {
		return errors.New("node table columns differ in length")
	}
	for i := range n {
		if t.Feature[i] < 0 {
			continue
		}
		if t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, t.Feature[i])
		}
		// Children are appended after their parent, so a forward index rules out cycles.
		l, r := int(t.Left[i]), int(t.Right[i])
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

func averageImportances(perTree [][]float64, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	for _, imp := range perTree {
		var total float64
		for _, v := range imp {
			total += v
		}
		if total == 0 {
			continue
		}
		for j, v := range imp {
			out[j] += v / total
		}
	}
	var total float64
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}
