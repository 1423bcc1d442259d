package dashboard

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is spec §6.2's error response shape.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	body := errorBody{Code: code, Message: message}
	if len(details) > 0 {
		body.Details = details[0]
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, "not_found", message)
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "bad_request", message)
}

func conflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, "conflict", message)
}

func internalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "internal_error", "request failed", err.Error())
}
