// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxBodyBytes caps decoded request bodies; posting payloads are small and
// anything bigger is a client error.
const maxBodyBytes = 1 << 20

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// problemTypes maps response statuses to stable problem type URIs clients
// can dispatch on without parsing titles.
var problemTypes = map[int]string{
	http.StatusBadRequest:          "https://helios-erp.dev/problems/validation",
	http.StatusUnauthorized:        "https://helios-erp.dev/problems/unauthorized",
	http.StatusForbidden:           "https://helios-erp.dev/problems/forbidden",
	http.StatusNotFound:            "https://helios-erp.dev/problems/not-found",
	http.StatusConflict:            "https://helios-erp.dev/problems/conflict",
	http.StatusTooManyRequests:     "https://helios-erp.dev/problems/rate-limited",
	http.StatusInternalServerError: "https://helios-erp.dev/problems/internal",
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response with the media type the
// RFC prescribes and a type URI derived from the status.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	typ, ok := problemTypes[status]
	if !ok {
		typ = "about:blank"
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Type:   typ,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes a JSON request body into the target struct, reading at
// most maxBodyBytes.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(target)
}
