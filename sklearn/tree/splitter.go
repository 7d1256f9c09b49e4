package tree

import (
	"math"
	"math/rand"
	"sort"
)

// featureThreshold is the minimum spread for a feature to be considered
// non-constant within a node.
const featureThreshold = 1e-7

// epsilon guards impurity comparisons against rounding noise.
const epsilon = 1e-12

// nodeStats holds the sufficient statistics of squared-error impurity.
type nodeStats struct {
	n     int
	sum   float64
	sumSq float64
}

func (s nodeStats) mean() float64 {
	return s.sum / float64(s.n)
}

// impurity is the population variance of the targets.
func (s nodeStats) impurity() float64 {
	if s.n == 0 {
		return 0
	}
	m := s.mean()
	v := s.sumSq/float64(s.n) - m*m
	if v < 0 {
		return 0
	}
	return v
}

func statsOf(d *Dataset, samples []int) nodeStats {
	var s nodeStats
	s.n = len(samples)
	for _, i := range samples {
		y := d.Y[i]
		s.sum += y
		s.sumSq += y * y
	}
	return s
}

// split is the outcome of a best-split search.
type split struct {
	feature   int
	threshold float64
	pos       int // number of samples going left
	left      nodeStats
	right     nodeStats
	proxy     float64
}

// splitter searches for the best split of a node. Its buffers are reused
// across nodes of one tree and are not safe for concurrent use.
type splitter struct {
	data           *Dataset
	rng            *rand.Rand
	maxFeatures    int
	minSamplesLeaf int

	features []int
	sorted   []int
	values   []float64
}

func newSplitter(d *Dataset, rng *rand.Rand, maxFeatures, minSamplesLeaf int) *splitter {
	features := make([]int, d.NFeatures)
	for j := range features {
		features[j] = j
	}
	return &splitter{
		data:           d,
		rng:            rng,
		maxFeatures:    maxFeatures,
		minSamplesLeaf: minSamplesLeaf,
		features:       features,
	}
}

// best finds the split maximizing the variance reduction proxy
// sumL²/nL + sumR²/nR. Features are drawn without replacement until
// maxFeatures non-constant features have been evaluated or none remain,
// so a node is only declared unsplittable when every feature is constant.
// It returns false when no valid split exists.
func (s *splitter) best(samples []int, parent nodeStats) (split, bool) {
	n := len(samples)
	if cap(s.sorted) < n {
		s.sorted = make([]int, n)
		s.values = make([]float64, n)
	}
	sorted := s.sorted[:n]
	values := s.values[:n]

	best := split{proxy: math.Inf(-1)}
	found := false
	visited := 0

	for remaining := len(s.features); remaining > 0 && visited < s.maxFeatures; remaining-- {
		// Fisher-Yates draw from the not yet visited tail
		k := s.rng.Intn(remaining)
		last := remaining - 1
		s.features[k], s.features[last] = s.features[last], s.features[k]
		f := s.features[last]

		copy(sorted, samples)
		sort.Slice(sorted, func(a, b int) bool {
			return s.data.At(sorted[a], f) < s.data.At(sorted[b], f)
		})
		for i, idx := range sorted {
			values[i] = s.data.At(idx, f)
		}
		if values[n-1] <= values[0]+featureThreshold {
			continue
		}
		visited++

		var left nodeStats
		for pos := 1; pos < n; pos++ {
			y := s.data.Y[sorted[pos-1]]
			left.n++
			left.sum += y
			left.sumSq += y * y

			if values[pos] <= values[pos-1]+featureThreshold {
				continue
			}
			if left.n < s.minSamplesLeaf || n-left.n < s.minSamplesLeaf {
				continue
			}
			right := nodeStats{
				n:     parent.n - left.n,
				sum:   parent.sum - left.sum,
				sumSq: parent.sumSq - left.sumSq,
			}
			proxy := left.sum*left.sum/float64(left.n) + right.sum*right.sum/float64(right.n)
			if proxy > best.proxy {
				threshold := values[pos-1]/2 + values[pos]/2
				if threshold == values[pos] || math.IsInf(threshold, 0) || math.IsNaN(threshold) {
					threshold = values[pos-1]
				}
				best = split{
					feature:   f,
					threshold: threshold,
					pos:       pos,
					left:      left,
					right:     right,
					proxy:     proxy,
				}
				found = true
			}
		}
	}

	// Restore the identity order so every node starts from the same
	// feature list regardless of earlier draws.
	for j := range s.features {
		s.features[j] = j
	}
	return best, found
}

// partition reorders samples in place so that the first sp.pos entries go
// left (x <= threshold).
func (s *splitter) partition(samples []int, sp split) {
	i, j := 0, len(samples)-1
	for i <= j {
		if s.data.At(samples[i], sp.feature) <= sp.threshold {
			i++
			continue
		}
		samples[i], samples[j] = samples[j], samples[i]
		j--
	}
}
