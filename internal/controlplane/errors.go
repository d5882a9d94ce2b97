package controlplane

import (
	"encoding/json"
	"net/http"

	"github.com/AlfredDev/orchestratord/internal/apperr"
)

// wireError is the JSON error shape spec.md §6 fixes:
// { "error": string, "code": string, "details": object? }.
type wireError struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(wireError{Error: message, Code: code, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForClass maps an apperr.Class to the status code spec.md §7 names.
func statusForClass(class apperr.Class) int {
	switch class {
	case apperr.ClassInput, apperr.ClassIntegrity:
		return http.StatusBadRequest
	case apperr.ClassAuth:
		return http.StatusUnauthorized
	case apperr.ClassNotFound:
		return http.StatusNotFound
	case apperr.ClassRateLimit:
		return http.StatusTooManyRequests
	case apperr.ClassCapacity:
		return http.StatusServiceUnavailable
	case apperr.ClassPersistence, apperr.ClassInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// renderErr is the single point that turns any error returned by a
// component into the wire shape, per spec.md §7: "the control plane is
// the single point that renders errors to JSON."
func renderErr(w http.ResponseWriter, err error) {
	if ae, ok := err.(*apperr.Error); ok {
		writeError(w, statusForClass(ae.Class), ae.Code, ae.Message, ae.Details)
		return
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
