package forest

import (
	"cmp"
	"math/rand/v2"
	"slices"
)

// minGain ignores splits whose variance reduction is floating-point noise.
const minGain = 1e-9

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// builder grows a single tree on a bootstrap sample.
type builder struct {
	x         [][]float64
	y         []float64
	nFeatures int
	p         Params
	rng       *rand.Rand

	tree       Tree
	importance []float64
	scratch    []int
}

func newBuilder(x [][]float64, y []float64, nFeatures int, p Params, rng *rand.Rand) *builder {
	return &builder{
		x:          x,
		y:          y,
		nFeatures:  nFeatures,
		p:          p,
		rng:        rng,
		importance: make([]float64, nFeatures),
	}
}

func (b *builder) build() (Tree, []float64) {
	n := len(b.y)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = b.rng.IntN(n)
	}
	b.scratch = make([]int, n)
	b.grow(idx, 0)
	return b.tree, b.importance
}

func (b *builder) grow(idx []int, depth int) int32 {
	node := b.addLeaf(b.mean(idx))

	if len(idx) < b.p.MinSamplesSplit || (b.p.MaxDepth > 0 && depth >= b.p.MaxDepth) {
		return node
	}
	sp, ok := b.bestSplit(idx)
	if !ok {
		return node
	}

	left, right := b.partition(idx, sp)
	b.importance[sp.feature] += sp.gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	b.tree.Feature[node] = sp.feature
	b.tree.Threshold[node] = sp.threshold
	b.tree.Left[node] = l
	b.tree.Right[node] = r
	return node
}

func (b *builder) addLeaf(value float64) int32 {
	b.tree.Feature = append(b.tree.Feature, -1)
	b.tree.Threshold = append(b.tree.Threshold, 0)
	b.tree.Left = append(b.tree.Left, -1)
	b.tree.Right = append(b.tree.Right, -1)
	b.tree.Value = append(b.tree.Value, value)
	return int32(len(b.tree.Value) - 1)
}

func (b *builder) mean(idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

// bestSplit scans every candidate feature for the threshold minimizing the summed
// squared error of the two children.
func (b *builder) bestSplit(idx []int) (split, bool) {
	n := len(idx)
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	parentSSE := sumSq - sum*sum/float64(n)
	if parentSSE <= minGain {
		return split{}, false
	}

	minLeaf := b.p.MinSamplesLeaf
	sorted := b.scratch[:n]
	best := split{gain: minGain}
	found := false

	for _, f := range b.candidateFeatures() {
		copy(sorted, idx)
		slices.SortFunc(sorted, func(a, c int) int { return cmp.Compare(b.x[a][f], b.x[c][f]) })

		var ls, lss float64
		for i := 0; i < n-1; i++ {
			yi := b.y[sorted[i]]
			ls += yi
			lss += yi * yi

			xi, xn := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			if xi == xn {
				continue
			}
			nl := i + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			rs, rss := sum-ls, sumSq-lss
			sse := (lss - ls*ls/float64(nl)) + (rss - rs*rs/float64(nr))
			if gain := parentSSE - sse; gain > best.gain {
				thr := xi + (xn-xi)/2
				if thr >= xn {
					thr = xi
				}
				best = split{feature: f, threshold: thr, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func (b *builder) candidateFeatures() []int {
	if b.p.MaxFeatures <= 0 || b.p.MaxFeatures >= b.nFeatures {
		all := make([]int, b.nFeatures)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(b.nFeatures)[:b.p.MaxFeatures]
}

func (b *builder) partition(idx []int, sp split) (left, right []int) {
	left = make([]int, 0, len(idx)/2)
	right = make([]int, 0, len(idx)/2)
	for _, i := range idx {
		if b.x[i][sp.feature] <= sp.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}
