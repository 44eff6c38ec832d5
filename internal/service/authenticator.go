// Пакет service — бизнес-логика Container Manager.
// authenticator.go — регистрация и вход пользователей.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arturkryukov/container-manager/internal/auth"
	"github.com/arturkryukov/container-manager/internal/domain/model"
	"github.com/arturkryukov/container-manager/internal/domain/rbac"
	"github.com/arturkryukov/container-manager/internal/repository"
)

// TokenIssuer — выпуск access token.
type TokenIssuer interface {
	Issue(username, role string) (model.Token, error)
}

// PasswordHasher — хеширование и проверка паролей.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
	VerifyDummy(password string) error
}

// Authenticator — регистрация и вход пользователей.
type Authenticator struct {
	users  repository.UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	logger *slog.Logger
}

// NewAuthenticator создаёт сервис аутентификации.
func NewAuthenticator(
	users repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	logger *slog.Logger,
) *Authenticator {
	return &Authenticator{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger.With(slog.String("component", "authenticator")),
	}
}

// Signup регистрирует пользователя и возвращает access token.
// Занятое имя, в том числе при гонке параллельных регистраций, — ErrUsernameTaken.
func (a *Authenticator) Signup(ctx context.Context, username, password, role string) (model.Token, error) {
	if username == "" {
		return model.Token{}, validationError("username обязателен")
	}
	if password == "" {
		return model.Token{}, validationError("password обязателен")
	}
	if len(password) > auth.MaxPasswordBytes {
		return model.Token{}, validationError("password длиннее %d байт", auth.MaxPasswordBytes)
	}
	if !rbac.IsValidRole(role) {
		return model.Token{}, validationError("недопустимая роль %q: допустимые значения — %v", role, rbac.Roles())
	}

	if _, err := a.users.GetByUsername(ctx, username); err == nil {
		return model.Token{}, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.Token{}, fmt.Errorf("проверка имени пользователя: %w", err)
	}

	hash, err := a.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return model.Token{}, validationError("%v", err)
	}
	if err != nil {
		return model.Token{}, err
	}

	user := &model.User{Username: username, PasswordHash: hash, Role: role}
	if err := a.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Token{}, ErrUsernameTaken
		}
		return model.Token{}, fmt.Errorf("сохранение пользователя: %w", err)
	}

	a.logger.Info("Пользователь зарегистрирован",
		slog.String("username", username),
		slog.String("role", role),
	)
	return a.tokens.Issue(username, role)
}

// Login проверяет пароль и возвращает access token.
// Неизвестный пользователь и неверный пароль — один и тот же ErrInvalidCredentials;
// для неизвестного пользователя сравнение с фиктивным хешем всё равно выполняется.
func (a *Authenticator) Login(ctx context.Context, username, password string) (model.Token, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return model.Token{}, fmt.Errorf("поиск пользователя: %w", err)
		}
		_ = a.hasher.VerifyDummy(password)
		a.logger.Warn("Неудачный вход", slog.String("username", username))
		return model.Token{}, ErrInvalidCredentials
	}

	if err := a.hasher.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			return model.Token{}, fmt.Errorf("проверка пароля: %w", err)
		}
		a.logger.Warn("Неудачный вход", slog.String("username", username))
		return model.Token{}, ErrInvalidCredentials
	}

	a.logger.Info("Вход выполнен", slog.String("username", username))
	return a.tokens.Issue(user.Username, user.Role)
}
