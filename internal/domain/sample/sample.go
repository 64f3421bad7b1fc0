// Package sample defines labeled samples and datasets.
package sample

import "github.com/kailas-cloud/blockrisk/internal/domain/feature"

// Labeled is one dataset row: block tag, inputs and heuristic risk score.
type Labeled struct {
	BlockID   int
	Features  feature.Vector
	RiskScore float64
}

// Dataset is an ordered collection of labeled samples.
type Dataset struct {
	Samples []Labeled
}

// Len returns the number of samples.
func (d Dataset) Len() int { return len(d.Samples) }

// Matrix returns the inputs in canonical column order and the targets.
func (d Dataset) Matrix() (x [][]float64, y []float64) {
	x = make([][]float64, len(d.Samples))
	y = make([]float64, len(d.Samples))
	for i, s := range d.Samples {
		x[i] = s.Features.Values()
		y[i] = s.RiskScore
	}
	return x, y
}

// Subset returns the samples at the given indices, in that order.
func (d Dataset) Subset(idx []int) Dataset {
	out := make([]Labeled, len(idx))
	for i, j := range idx {
		out[i] = d.Samples[j]
	}
	return Dataset{Samples: out}
}
