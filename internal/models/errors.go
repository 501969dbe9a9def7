package models

import (
	"errors"
	"fmt"
)

// Доменные ошибки. Сервисы оборачивают их через %w, HTTP-слой
// сопоставляет их со статус-кодами.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConcurrentUpdate  = errors.New("concurrent update")
)

// TransitionError описывает отклонённый переход статуса
type TransitionError struct {
	Entity string
	From   string
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: action %q is not allowed in status %q", e.Entity, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError описывает некорректное поле запроса
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError создает ошибку валидации для поля
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
