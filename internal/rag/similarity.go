package rag

import "math"

// Cosine returns dot(a,b)/(|a|*|b|). It is 0 when either vector is empty
// or has zero magnitude. The dot product pairs elements up to the shorter
// length; each magnitude covers its whole vector.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
	}

	ma, mb := magnitude(a), magnitude(b)
	if ma == 0 || mb == 0 {
		return 0
	}
	return dot / (ma * mb)
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
