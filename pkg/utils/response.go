package utils

import (
	"encoding/json"
	"net/http"

	"vendfleet-backend/internal/apperr"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error writes {"error":{"code","message"}} with an explicit status.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorEnvelope{Error: ErrorBody{Code: code, Message: message}})
}

// AppError writes err with the status and code of its kind. Internal errors
// are masked.
func AppError(w http.ResponseWriter, err error) {
	Error(w, apperr.HTTPStatus(err), string(apperr.KindOf(err)), apperr.PublicMessage(err))
}
