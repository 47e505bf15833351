package geom

import (
	"bytes"
	"encoding/json"
	"fmt"
)

func marshalTriple(x, y, z float64) ([]byte, error) {
	return json.Marshal([3]float64{x, y, z})
}

func unmarshalTriple(data []byte) (x, y, z float64, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, 0, 0, nil
	}

	if trimmed[0] == '{' {
		var obj struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			Z float64 `json:"z"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return 0, 0, 0, fmt.Errorf("vector object: %w", err)
		}
		return obj.X, obj.Y, obj.Z, nil
	}

	var arr []float64
	if err := json.Unmarshal(trimmed, &arr); err != nil {
		return 0, 0, 0, fmt.Errorf("vector array: %w", err)
	}
	if len(arr) != 3 {
		return 0, 0, 0, fmt.Errorf("vector array: want 3 components, got %d", len(arr))
	}
	return arr[0], arr[1], arr[2], nil
}
