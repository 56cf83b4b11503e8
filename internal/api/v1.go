package api

import "time"

// APIError is the body of every non-2xx daemon response's error field.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps APIError with the schema envelope every daemon
// response carries, success or failure.
type ErrorResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Error         APIError  `json:"error"`
}
