package api

import (
	"encoding/json"
	"net/http"

	"timeclock/internal/timetrack"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type validationResponse struct {
	Error      string              `json:"error"`
	Message    string              `json:"message"`
	Violations []timetrack.Outcome `json:"violations"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorResponse{Error: code, Message: message})
}
