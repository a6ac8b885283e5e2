//go:build jsonv2

package output

import (
	"encoding/json/jsontext"
	jsonv2 "encoding/json/v2"
)

// v2 leaves map order unspecified unless asked; documents must be stable
// across runs with the same inputs.
var documentOptions = jsonv2.JoinOptions(
	jsonv2.Deterministic(true),
	jsontext.WithIndent("  "),
)

func marshalDocument(value any) ([]byte, error) {
	data, err := jsonv2.Marshal(value, documentOptions)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func marshalCompact(value any) ([]byte, error) {
	return jsonv2.Marshal(value, jsonv2.Deterministic(true))
}
