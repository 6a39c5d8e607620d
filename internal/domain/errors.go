package domain

import (
	"errors"
	"fmt"
)

// Ошибки предметной области. Слой HTTP различает их через errors.Is.
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrInvalidFilter фильтр не выбирает ни одного поля
	ErrInvalidFilter = errors.New("empty record filter")

	// ErrCustomerNotFound для email нет локальной записи клиента
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrUpstream ошибка хранилища или платежного провайдера
	ErrUpstream = errors.New("upstream failure")

	// ErrNoRecurringPrice у провайдера нет ни одной регулярной цены
	ErrNoRecurringPrice = errors.New("no recurring price available")
)

// ValidationError представляет ошибку валидации входных данных.
// Message показывается клиенту как есть.
type ValidationError struct {
	Field   string
	Message string
}

// Error реализует интерфейс error
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
}

// Is позволяет проверять ошибку через errors.Is(err, ErrInvalidInput)
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError создает новую ошибку валидации
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// DuplicateError представляет ошибку дубликата
type DuplicateError struct {
	Entity string
	Field  string
	Value  string
}

// Error реализует интерфейс error
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %s %q already exists", e.Entity, e.Field, e.Value)
}

// Is сопоставляет ошибку с ErrDuplicate
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// NewDuplicateError создает новую ошибку дубликата
func NewDuplicateError(entity, field, value string) *DuplicateError {
	return &DuplicateError{
		Entity: entity,
		Field:  field,
		Value:  value,
	}
}

// UpstreamError сбой хранилища или Stripe. Клиент видит только 500.
type UpstreamError struct {
	Service     string
	Operation   string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Operation, e.OriginalErr)
}

// Unwrap возвращает оригинальную ошибку
func (e *UpstreamError) Unwrap() error {
	return e.OriginalErr
}

// Is проверяет, является ли ошибка ошибкой внешнего сервиса
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// NewUpstreamError создает новую ошибку внешнего сервиса
func NewUpstreamError(service, operation string, err error) *UpstreamError {
	return &UpstreamError{
		Service:     service,
		Operation:   operation,
		OriginalErr: err,
	}
}

// IsClientError сообщает, что ошибку нужно показать клиенту (422), а не скрыть за 500.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrCustomerNotFound)
}
