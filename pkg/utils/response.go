package utils

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
)

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func BuildSuccessResponse(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func BuildErrorResponse(w http.ResponseWriter, status int, message string, errs interface{}) {
	writeJSON(w, status, Response{Success: false, Message: message, Errors: errs})
}

// WriteError maps an error from the service layer onto the response envelope.
func WriteError(w http.ResponseWriter, err error) {
	kind := apperror.KindOf(err)
	status := apperror.HTTPStatus(kind)

	if kind == apperror.KindInternal || kind == apperror.KindProvider {
		logger.Error("Request failed", logger.Merge(logger.WithError(err), logger.Fields{"kind": string(kind)}))
	}

	if appErr, ok := apperror.As(err); ok && appErr.RetryAfter > 0 {
		secs := int(math.Ceil(appErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		BuildErrorResponse(w, status, apperror.PublicMessage(err), map[string]int{"retry_after": secs})
		return
	}

	BuildErrorResponse(w, status, apperror.PublicMessage(err), nil)
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", logger.WithError(err))
	}
}
