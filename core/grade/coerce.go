package grade

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

// ToFloat coerces v to a float64. Anything non-numeric, NaN or infinite becomes 0.
func ToFloat(v interface{}) float64 {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f := cast.ToFloat64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ToInt coerces v to an int, truncating fractions. Anything non-numeric becomes 0.
func ToInt(v interface{}) int {
	return int(ToFloat(v))
}

// ToFloats coerces every value of vs.
func ToFloats(vs []interface{}) []float64 {
	fs := make([]float64, 0, len(vs))
	for _, v := range vs {
		fs = append(fs, ToFloat(v))
	}
	return fs
}

func clampMarks(m float64) float64 {
	switch {
	case math.IsNaN(m), m < 0:
		return 0
	case m > 100:
		return 100
	}
	return m
}
