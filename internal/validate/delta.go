package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Delta is a change in log density. A failed evaluation can leave it NaN
// or infinite, which JSON numbers cannot carry, so those encode as the
// strings "NaN", "+Inf" and "-Inf".
type Delta float64

// MarshalJSON implements json.Marshaler.
func (d Delta) MarshalJSON() ([]byte, error) {
	f := float64(d)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Delta) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("delta: %w", err)
		}
		*d = Delta(f)
		return nil
	}
	switch s {
	case "NaN":
		*d = Delta(math.NaN())
	case "+Inf":
		*d = Delta(math.Inf(1))
	case "-Inf":
		*d = Delta(math.Inf(-1))
	default:
		return fmt.Errorf("delta: unexpected %q", s)
	}
	return nil
}
