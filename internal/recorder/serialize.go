package recorder

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// serializeAny canonicalizes an arbitrary response value for the JSONL
// record: bytes become {"__bytes__": <utf8-lossy>}, maps/slices recurse,
// structs flatten to their attribute maps via a JSON round trip, and
// anything else stringifies. A serializer failure never fails the
// recorded call; the caller records success=false with the error text
// instead.
func serializeAny(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return map[string]interface{}{"__bytes__": lossyUTF8(t)}
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = serializeAny(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = serializeAny(val)
		}
		return out
	case error:
		return t.Error()
	}

	// Structs, typed slices, and typed maps flatten through JSON.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return string(data)
	}
	return decoded
}

// lossyUTF8 replaces invalid sequences with U+FFFD, mirroring a lossy
// byte-to-text decode so binary payloads survive the JSON record.
func lossyUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out := make([]rune, 0, len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		out = append(out, r)
		b = b[size:]
	}
	return string(out)
}

// bytesFromRecord reverses the {"__bytes__": ...} encoding when a
// replayed request carries byte payloads.
func bytesFromRecord(v interface{}) ([]byte, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	s, ok := m["__bytes__"].(string)
	if !ok {
		return nil, false
	}
	return []byte(s), true
}
