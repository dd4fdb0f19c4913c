package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"tablelink-backend/internal/domain"
)

type apiError struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
}

type apiResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Data    any       `json:"data"`
	Error   *apiError `json:"error,omitempty"`
}

func writeRawJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	writeRawJSON(w, status, apiResponse{
		Status: "ok",
		Data:   payload,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	if status < 400 {
		status = http.StatusInternalServerError
	}
	writeRawJSON(w, status, apiResponse{
		Status:  "error",
		Message: message,
		Error: &apiError{
			Code:   status,
			Status: http.StatusText(status),
		},
	})
}

// writeDomainError maps sentinel errors to HTTP statuses; anything unknown is
// an internal error.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientPoints),
		errors.Is(err, domain.ErrInvalidCoupon),
		errors.Is(err, domain.ErrPaymentMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrTableNotFound),
		errors.Is(err, domain.ErrTicketNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
