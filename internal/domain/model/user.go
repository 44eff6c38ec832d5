// Пакет model — доменные модели Container Manager.
package model

import "time"

// User — учётная запись пользователя.
// Хранится в таблице users, в ответах API пароль не отдаётся.
type User struct {
	// Username — уникальное имя пользователя (первичный ключ)
	Username string
	// PasswordHash — bcrypt-хеш пароля
	PasswordHash string
	// Role — роль (Admin, Manager, Employee)
	Role string
	// CreatedAt — время регистрации
	CreatedAt time.Time
}

// Claim — идентичность, восстановленная из проверенного токена.
type Claim struct {
	Username string
	Role     string
}

// Token — выданный access token.
type Token struct {
	AccessToken string
	TokenType   string
	// ExpiresIn — время жизни токена в секундах
	ExpiresIn int64
}
