package embedder

import "math"

// Normalize returns the L2-normalized copy of vec. The similarity index
// scores by dot product, which equals cosine similarity only for unit
// vectors, so backends that do not normalize their output pass it through
// here. A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out
}
