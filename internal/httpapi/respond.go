package httpapi

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes v as the response body. Errors here are system-boundary
// edge cases (a broken client connection); §7 requires no raw exception
// text ever reach the caller, which this never risks since json.Marshal on
// these response shapes cannot fail.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeReason writes the sanitized {"reason": ...} body §7 requires for
// denials and adapter/approval errors.
func writeReason(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"reason": reason})
}
