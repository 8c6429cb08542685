package cliexec

import (
	"bytes"
	"encoding/json"
)

// ExtractJSON returns the first balanced JSON object embedded in out.
//
// The MoltBot CLI interleaves log lines with its --json payload, so the
// payload has to be located rather than parsed whole. Each '{' is tried in
// order and the first one that decodes as a complete value wins; trailing
// text after the object is ignored.
func ExtractJSON(out []byte) (json.RawMessage, error) {
	for i := 0; i < len(out); {
		j := bytes.IndexByte(out[i:], '{')
		if j < 0 {
			break
		}
		start := i + j

		var raw json.RawMessage
		if err := json.NewDecoder(bytes.NewReader(out[start:])).Decode(&raw); err == nil {
			obj := make([]byte, len(raw))
			copy(obj, raw)
			return obj, nil
		}
		i = start + 1
	}
	return nil, ErrNoJSON
}
