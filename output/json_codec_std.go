//go:build !jsonv2

package output

import "encoding/json"

// marshalDocument renders records and the scan tree: two space indent, map
// keys sorted, trailing newline.
func marshalDocument(value any) ([]byte, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func marshalCompact(value any) ([]byte, error) {
	return json.Marshal(value)
}
