// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrAlreadyExists — запись уже существует.
	ErrAlreadyExists = errors.New("запись уже существует")
	// ErrUsernameTaken — имя пользователя занято.
	ErrUsernameTaken = errors.New("имя пользователя уже занято")
	// ErrInvalidCredentials — неверное имя пользователя или пароль.
	// Один ответ для неизвестного пользователя и неверного пароля.
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrEngineUnauthorized — реестр образов отклонил учётные данные.
	ErrEngineUnauthorized = errors.New("реестр образов отклонил учётные данные")
	// ErrConflict — конфликт состояния в Docker Engine.
	ErrConflict = errors.New("конфликт состояния")
)

// RateLimitExceededError — превышен лимит запусков контейнеров за час.
type RateLimitExceededError struct {
	Limit int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("Превышен лимит запусков контейнеров: %d в час", e.Limit)
}

// EngineError — непредвиденная ошибка Docker Engine.
// Message — публичное описание операции, Err — исходная ошибка для лога.
type EngineError struct {
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	return e.Message + ": " + e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// validationError оборачивает ErrValidation с описанием поля.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
