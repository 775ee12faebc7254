package shared

import "math"

// Vector is an embedding. A nil Vector means "no vector".
type Vector []float32

// IsZero reports whether v is absent or empty.
func (v Vector) IsZero() bool {
	return len(v) == 0
}

// Finite reports whether every component is a finite number.
func (v Vector) Finite() bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Clone returns a copy of v, preserving nil.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}
