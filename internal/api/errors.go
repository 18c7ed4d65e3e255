package api

import (
	"encoding/json"
	"net/http"
)

// apiError is the body of every 4xx and 5xx response.
type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Machine-readable codes carried in apiError.Code.
const (
	codeNotFound         = "not_found"
	codeMethodNotAllowed = "method_not_allowed"
	codeNotArmed         = "not_armed"
	codeRateLimited      = "rate_limited"
	codeInternal         = "internal_error"
)

// codeStatus maps each code to its HTTP status.
var codeStatus = map[string]int{
	codeNotFound:         http.StatusNotFound,
	codeMethodNotAllowed: http.StatusMethodNotAllowed,
	codeNotArmed:         http.StatusConflict,
	codeRateLimited:      http.StatusTooManyRequests,
	codeInternal:         http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // the client may already be gone
	json.NewEncoder(w).Encode(v)
}

// fail writes an apiError tagged with the request's ID. Unknown codes are
// reported as 500.
func fail(w http.ResponseWriter, r *http.Request, code, message string) {
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, apiError{Code: code, Message: message, RequestID: requestID(r)})
}
