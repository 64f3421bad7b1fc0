package feature

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/blockrisk/internal/domain"
)

// maxInteger bounds integer fields so truncation never overflows.
const maxInteger = math.MaxInt32

// Resolve turns a decoded JSON object into a Vector.
//
// For every schema field the caller's value is used when the key is present,
// otherwise the field default. Keys outside the schema are ignored. Accepted values
// are JSON numbers and numeric strings; integer fields are truncated toward zero.
// Domain ranges are not checked here, see Vector.OutOfRange.
func Resolve(raw map[string]any) (Vector, error) {
	v := Defaults()
	for _, f := range schema {
		val, ok := raw[string(f.Name)]
		if !ok {
			continue
		}
		x, err := coerce(f, val)
		if err != nil {
			return Vector{}, err
		}
		v.set(f.Name, x)
	}
	return v, nil
}

func coerce(f Field, val any) (float64, error) {
	var x float64
	switch t := val.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, domain.NewInvalidInput(string(f.Name), fmt.Sprintf("%q is not a number", t.String()))
		}
		x = n
	case float64:
		x = t
	case float32:
		x = float64(t)
	case int:
		x = float64(t)
	case int64:
		x = float64(t)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, domain.NewInvalidInput(string(f.Name), fmt.Sprintf("%q is not a number", t))
		}
		x = n
	case nil:
		return 0, domain.NewInvalidInput(string(f.Name), "must be a number, got null")
	default:
		return 0, domain.NewInvalidInput(string(f.Name), fmt.Sprintf("must be a number, got %T", val))
	}

	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, domain.NewInvalidInput(string(f.Name), "must be finite")
	}
	if f.Kind == Integer {
		x = math.Trunc(x)
		if math.Abs(x) > maxInteger {
			return 0, domain.NewInvalidInput(string(f.Name), "exceeds integer range")
		}
	}
	return x, nil
}
