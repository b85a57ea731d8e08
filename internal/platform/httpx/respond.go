// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ThrottleDetail is the body of a 429 response.
type ThrottleDetail struct {
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// TooManyRequests writes a 429 with the Retry-After header and a retry hint
// in the body, retryAfter in seconds.
func TooManyRequests(w http.ResponseWriter, detail string, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	JSON(w, http.StatusTooManyRequests, ThrottleDetail{
		Detail:     detail,
		RetryAfter: retryAfter,
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
