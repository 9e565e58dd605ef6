// Package httputil holds the JSON conventions of the track HTTP API: every
// response is JSON and every failure is {"error": "..."}.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/banshee-data/slr.track/internal/monitoring"
)

// ErrorBody is the payload of every failed API call.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("[HTTP] failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes data with 200 OK.
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// Created writes data with 201 Created.
func Created(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusCreated, data)
}

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// MethodNotAllowed writes a 405 listing the accepted methods in Allow.
func MethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 with a formatted message.
func BadRequest(w http.ResponseWriter, format string, args ...interface{}) {
	WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// NotFound writes a 404 with a formatted message.
func NotFound(w http.ResponseWriter, format string, args ...interface{}) {
	WriteJSONError(w, http.StatusNotFound, fmt.Sprintf(format, args...))
}

// InternalServerError logs err and writes a 500 without leaking it.
func InternalServerError(w http.ResponseWriter, err error) {
	monitoring.Logf("[HTTP] internal error: %v", err)
	WriteJSONError(w, http.StatusInternalServerError, "internal error")
}

// RequireQuery returns the named query parameter or writes a 400 and
// returns false when it is missing.
func RequireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		BadRequest(w, "missing '%s' parameter", name)
		return "", false
	}
	return v, true
}
