package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// HashParams canonicalizes params (sorted keys, recursively) and returns the
// hex SHA-256 digest. Grounded on original_source/aegis/telemetry.py's
// _hash_params, which does json.dumps(params, sort_keys=True) then sha256;
// Go's encoding/json writes map keys in sorted order at every nesting level,
// so the marshaled bytes of the canonicalized copy are key-order independent.
func HashParams(params map[string]interface{}) string {
	canon := canonicalize(params)
	data, _ := json.Marshal(canon)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalize makes a recursive copy of a decoded JSON value (maps and
// slices at every depth). The sorted key order in the output comes from
// encoding/json, which sorts map keys at every level when marshaling.
func canonicalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(val))
		for _, k := range keys {
			out[k] = canonicalize(val[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return val
	}
}
