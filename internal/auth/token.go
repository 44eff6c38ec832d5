// Пакет auth — выпуск и проверка access token (JWT, HMAC) и хеширование паролей.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// TokenType — тип токена в ответе /auth/*.
const TokenType = "bearer"

// Ошибки проверки токена.
var (
	// ErrTokenExpired — срок действия токена истёк.
	ErrTokenExpired = errors.New("срок действия токена истёк")
	// ErrTokenInvalid — подпись не сходится, payload не разбирается
	// или отсутствуют обязательные claims.
	ErrTokenInvalid = errors.New("невалидный токен")
)

// tokenClaims — claims access token: sub = username, role, exp, iat.
type tokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenCodec выпускает и проверяет подписанные access token.
// Не хранит изменяемого состояния, безопасен для конкурентного использования.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption — опция TokenCodec.
type TokenOption func(*TokenCodec)

// WithClock подменяет источник текущего времени (для тестов).
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec создаёт codec с общим секретом и алгоритмом HS256/HS384/HS512.
// ttl — время жизни токена по умолчанию.
func NewTokenCodec(secret, algorithm string, ttl time.Duration, opts ...TokenOption) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("пустой секрет подписи")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("некорректное время жизни токена: %v", ttl)
	}

	var method jwt.SigningMethod
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("неподдерживаемый алгоритм подписи %q", algorithm)
	}

	c := &TokenCodec{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL возвращает время жизни токена по умолчанию.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue выпускает токен с временем жизни по умолчанию.
func (c *TokenCodec) Issue(username, role string) (model.Token, error) {
	return c.IssueWithTTL(username, role, c.ttl)
}

// IssueWithTTL выпускает токен, истекающий через ttl от текущего момента.
func (c *TokenCodec) IssueWithTTL(username, role string, ttl time.Duration) (model.Token, error) {
	if username == "" || role == "" {
		return model.Token{}, errors.New("username и role обязательны для выпуска токена")
	}

	now := c.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return model.Token{}, fmt.Errorf("подпись токена: %w", err)
	}

	return model.Token{
		AccessToken: signed,
		TokenType:   TokenType,
		ExpiresIn:   int64(ttl / time.Second),
	}, nil
}

// Decode проверяет подпись и срок действия токена и возвращает claim.
// Истёкший токен — ErrTokenExpired, любой другой дефект — ErrTokenInvalid.
func (c *TokenCodec) Decode(tokenString string) (model.Claim, error) {
	claims := &tokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Claim{}, ErrTokenExpired
		}
		return model.Claim{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return model.Claim{}, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.Role == "" {
		return model.Claim{}, fmt.Errorf("%w: отсутствует sub или role", ErrTokenInvalid)
	}

	return model.Claim{Username: claims.Subject, Role: claims.Role}, nil
}
