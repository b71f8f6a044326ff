package api

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// result is the envelope of message responses that carry no data.
type result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"success":false,"error":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, result{Success: false, Error: message})
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, result{Success: true})
}
