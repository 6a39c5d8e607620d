package res

import (
	"encoding/json"
	"net/http"

	"github.com/Dhoini/billing-sync/pkg/logger"
)

// InternalErrorMessage тело ответа для любых внутренних ошибок (детали не раскрываются).
const InternalErrorMessage = "Internal Server Error"

// ErrorResponse представляет формат JSON-ответа для ошибок.
type ErrorResponse struct {
	Error   string `json:"error"`             // Сообщение об ошибке (для пользователя)
	Details any    `json:"details,omitempty"` // Детали ошибки (например, ошибки валидации)
}

// JsonResponse отправляет JSON-ответ с заданным статусом.
func JsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JsonErrorResponse отправляет JSON ответ ошибки и логирует его.
func JsonErrorResponse(w http.ResponseWriter, errResponse ErrorResponse, status int, log *logger.Logger) {
	JsonResponse(w, errResponse, status)
	log.Warnw("Error response sent", "status", status, "error", errResponse.Error)
}

// ValidationError отвечает 422 с сообщением об ошибке.
func ValidationError(w http.ResponseWriter, message string) {
	JsonResponse(w, ErrorResponse{Error: message}, http.StatusUnprocessableEntity)
}

// InternalError отвечает 500 с общим сообщением.
func InternalError(w http.ResponseWriter) {
	JsonResponse(w, ErrorResponse{Error: InternalErrorMessage}, http.StatusInternalServerError)
}
