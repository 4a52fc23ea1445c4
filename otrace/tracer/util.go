// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

// toFloat64 attempts to convert the value into a float64. Booleans and all
// integer widths map onto numbers; anything else is rejected.
func toFloat64(value interface{}) (f float64, ok bool) {
	switch i := value.(type) {
	case bool:
		if i {
			return 1, true
		}
		return 0, true
	case byte:
		return float64(i), true
	case int:
		return float64(i), true
	case int8:
		return float64(i), true
	case int16:
		return float64(i), true
	case int32:
		return float64(i), true
	case int64:
		return float64(i), true
	case uint:
		return float64(i), true
	case uint16:
		return float64(i), true
	case uint32:
		return float64(i), true
	case uint64:
		return float64(i), true
	case float32:
		return float64(i), true
	case float64:
		return i, true
	default:
		return 0, false
	}
}
