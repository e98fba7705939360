package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// envelope is the shape of every JSON response
type envelope struct {
	Error   bool        `json:"error"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeData writes a successful response carrying a payload
func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Error: false, Data: data})
}

// writeMessage writes a successful response carrying only a message
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Error: false, Message: message})
}

// writeError writes an error response with a user-facing message
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Error: true, Message: message})
}

// writeInternalError logs the underlying error and hides it from the caller
func writeInternalError(w http.ResponseWriter, logMessage string, err error) {
	log.Printf("%s: %v", logMessage, err)
	writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}
