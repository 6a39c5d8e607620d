package req

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
)

// ErrEmptyBody тело запроса отсутствует.
var ErrEmptyBody = errors.New("request body is empty")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode декодирует JSON из io.ReadCloser в структуру типа T.
func Decode[T any](body io.ReadCloser) (T, error) {
	var payload T
	if body == nil {
		return payload, ErrEmptyBody
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return payload, ErrEmptyBody
		}
		return payload, err
	}
	return payload, nil
}

// IsValid валидирует структуру типа T.
func IsValid[T any](payload T) error {
	return validate.Struct(payload)
}

// HandleBody декодирует и валидирует тело запроса.
// Пустое тело считается пустым объектом, чтобы валидация сообщила о недостающих полях.
func HandleBody[T any](body io.ReadCloser) (*T, error) {
	payload, err := Decode[T](body)
	if err != nil && !errors.Is(err, ErrEmptyBody) {
		return nil, err
	}
	if err := IsValid(payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
