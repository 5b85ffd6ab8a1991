package fountain

import "math"

// smallKFallback is the chunk-count threshold at or below which the degree
// distribution degenerates to "always combine everything" (§4.3).
const smallKFallback = 4

// Distribution draws a packet degree in [1, K] given a seed. Implementers
// may substitute any distribution meeting the decoding-success property in
// spec §8.1; RobustSoliton is the reference implementation.
type Distribution interface {
	Draw(seedBase uint32, chunksCount uint32) uint16
}

// RobustSoliton is the reference LT degree distribution, parameterized by
// (c, delta) as in Luby's construction: a spike at degree K/R (rounded to
// the nearest integer, clamped to [1, K]) on top
// of the ideal soliton distribution, normalized to a proper CDF.
type RobustSoliton struct {
	C     float64
	Delta float64

	// cached CDF, rebuilt whenever chunksCount changes
	forK uint32
	cdf  []float64
}

// NewRobustSoliton returns the reference distribution with Luby's typical
// defaults (c=0.1, delta=0.05), reasonable across a wide range of K.
func NewRobustSoliton() *RobustSoliton {
	return &RobustSoliton{C: 0.1, Delta: 0.05}
}

// Draw seeds its own PRNG from seedBase (distinct from the chunk-selector
// seed) and returns a degree in [1, chunksCount], guaranteeing
// reproducibility between encoder and decoder.
func (r *RobustSoliton) Draw(seedBase uint32, chunksCount uint32) uint16 {
	if chunksCount <= smallKFallback {
		return uint16(chunksCount)
	}

	if r.forK != chunksCount || r.cdf == nil {
		r.cdf = robustSolitonCDF(int(chunksCount), r.C, r.Delta)
		r.forK = chunksCount
	}

	// Scramble seedBase first: a single xorshift step leaves the top bits of
	// small sequential seeds (the usual case) nearly zero.
	state := seedBase
	state ^= state >> 16
	state *= 0x85EBCA6B
	state ^= state >> 13
	state *= 0xC2B2AE35
	state ^= state >> 16
	if state == 0 {
		state = 0x85EBCA6B
	}
	state = xorshift32(state)
	// draw a uniform float in [0, 1) from the top 24 bits
	u := float64(state>>8) / float64(1<<24)

	for degree, cum := range r.cdf {
		if u < cum {
			return uint16(degree + 1)
		}
	}
	return uint16(chunksCount)
}

// robustSolitonCDF builds the cumulative distribution function over degrees
// 1..k for Luby's Robust Soliton distribution.
func robustSolitonCDF(k int, c, delta float64) []float64 {
	rho := make([]float64, k+1) // 1-indexed
	rho[1] = 1.0 / float64(k)
	for d := 2; d <= k; d++ {
		rho[d] = 1.0 / (float64(d) * float64(d-1))
	}

	s := c * math.Log(float64(k)/delta) * math.Sqrt(float64(k))
	spike := int(math.Round(float64(k) / s))
	if spike < 1 {
		spike = 1
	}
	if spike > k {
		spike = k
	}

	tau := make([]float64, k+1)
	for d := 1; d < spike; d++ {
		tau[d] = s / float64(k) / float64(d)
	}
	tau[spike] = s * math.Log(s/delta) / float64(k)
	// tau[d]=0 for d>spike

	beta := 0.0
	for d := 1; d <= k; d++ {
		beta += rho[d] + tau[d]
	}

	cdf := make([]float64, k)
	cum := 0.0
	for d := 1; d <= k; d++ {
		cum += (rho[d] + tau[d]) / beta
		cdf[d-1] = cum
	}
	cdf[k-1] = 1.0 // guard against float drift
	return cdf
}
