package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes — предел длины пароля bcrypt в байтах.
const MaxPasswordBytes = 72

var (
	// ErrPasswordMismatch — пароль не соответствует хешу.
	ErrPasswordMismatch = errors.New("пароль не совпадает")
	// ErrPasswordTooLong — пароль длиннее MaxPasswordBytes.
	ErrPasswordTooLong = fmt.Errorf("пароль длиннее %d байт", MaxPasswordBytes)
)

// PasswordHasher хеширует и проверяет пароли через bcrypt.
// Соль генерируется заново при каждом Hash.
type PasswordHasher struct {
	cost      int
	dummyHash []byte
}

// NewPasswordHasher создаёт hasher с заданной стоимостью bcrypt.
// Заранее вычисляет фиктивный хеш для выравнивания времени ответа
// при входе несуществующего пользователя.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("container-manager-dummy"), cost)
	if err != nil {
		return nil, fmt.Errorf("генерация фиктивного хеша: %w", err)
	}
	return &PasswordHasher{cost: cost, dummyHash: dummy}, nil
}

// Hash возвращает bcrypt-хеш пароля.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("пустой пароль")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", fmt.Errorf("хеширование пароля: %w", err)
	}
	return string(hash), nil
}

// Verify сравнивает пароль с хешем. Несовпадение — ErrPasswordMismatch.
func (h *PasswordHasher) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return fmt.Errorf("проверка пароля: %w", err)
}

// VerifyDummy выполняет сравнение с фиктивным хешем и всегда возвращает
// ErrPasswordMismatch.
func (h *PasswordHasher) VerifyDummy(password string) error {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
	return ErrPasswordMismatch
}
