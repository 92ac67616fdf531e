// Package respond writes the JSON envelope shared by the HTTP handlers
// and middleware.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authcore"
)

// Envelope is the body of every response.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		StatusCode: status,
		Success:    status < http.StatusBadRequest,
		Message:    message,
		Data:       data,
	})
}

// Error writes err through authcore.Public. Throttling errors carry a
// Retry-After header.
func Error(w http.ResponseWriter, err error) {
	status, message := authcore.Public(err)

	var e *authcore.Error
	if errors.As(err, &e) && e.Kind == authcore.KindTooManyAttempts && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(e.RetryAfter.Seconds())))
	}
	JSON(w, status, message, nil)
}
