package tokengen

import (
	"math"
	"math/rand/v2"
)

// GenerateEmbedding samples dim values from N(0,1) and L2-normalizes them.
// The caller derives rng from (root_seed, fingerprint, input_index) so
// repeating a request reproduces identical vectors.
func GenerateEmbedding(dim int, rng *rand.Rand) []float32 {
	vec := make([]float32, dim)
	var sumSquares float64
	for i := 0; i < dim; i++ {
		v := boxMuller(rng)
		vec[i] = float32(v)
		sumSquares += v * v
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / magnitude)
		}
	}
	return vec
}

// boxMuller returns one N(0,1) sample. Duplicated (deliberately, it is four
// lines) from internal/latency rather than shared, so tokengen has no
// dependency on the latency sampler's Duration-oriented API.
func boxMuller(rng *rand.Rand) float64 {
	u1 := rng.Float64()
	for u1 == 0 {
		u1 = rng.Float64()
	}
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
