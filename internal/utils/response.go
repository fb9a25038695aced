package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-raffle/internal/models"
)

type APIResponse struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	Data          interface{} `json:"data,omitempty"`
	Error         string      `json:"error,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	TicketNumbers []int       `json:"ticket_numbers,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now().UTC(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, SuccessResponse(message, data))
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse(http.StatusText(status), message))
}

// WriteDomainError maps a RaffleError to its status code and reason; any
// other error is an opaque 500.
func WriteDomainError(w http.ResponseWriter, err error) {
	var re *models.RaffleError
	if !errors.As(err, &re) {
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	resp := ErrorResponse(string(re.Category), re.Message)
	resp.Reason = string(re.Reason)
	resp.TicketNumbers = re.TicketNumbers
	WriteJSON(w, re.StatusCode, resp)
}
