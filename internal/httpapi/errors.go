package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"inferd/pkg/types"
)

// writeJSONError writes the consistent JSON error payload every endpoint
// shares: a typed detail object plus the request correlation id.
func writeJSONError(w http.ResponseWriter, status int, typ, msg, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{
		Error: types.ErrorDetail{
			Type:      typ,
			Message:   msg,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		RequestID: requestID,
	})
}
