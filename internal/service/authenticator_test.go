package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arturkryukov/container-manager/internal/auth"
)

func newTestAuthenticator(t *testing.T, users *fakeUserRepo) (*Authenticator, *auth.TokenCodec) {
	t.Helper()
	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	codec, err := auth.NewTokenCodec("test-secret", "HS256", 30*time.Minute)
	require.NoError(t, err)
	return NewAuthenticator(users, hasher, codec, testLogger()), codec
}

func TestAuthenticator_SignupThenLogin(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	a, codec := newTestAuthenticator(t, users)

	token, err := a.Signup(ctx, "alice", "s3cret", "Admin")
	require.NoError(t, err)
	assert.Equal(t, auth.TokenType, token.TokenType)
	assert.Equal(t, int64(1800), token.ExpiresIn)

	claim, err := codec.Decode(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claim.Username)
	assert.Equal(t, "Admin", claim.Role)

	stored, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", stored.PasswordHash, "пароль не должен храниться открытым текстом")

	token, err = a.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)
	claim, err = codec.Decode(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "Admin", claim.Role)
}

func TestAuthenticator_SignupDuplicate(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAuthenticator(t, newFakeUserRepo())

	_, err := a.Signup(ctx, "alice", "first", "Manager")
	require.NoError(t, err)

	_, err = a.Signup(ctx, "alice", "second", "Admin")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	// Исходные учётные данные не изменились
	_, err = a.Login(ctx, "alice", "first")
	assert.NoError(t, err)
	_, err = a.Login(ctx, "alice", "second")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticator_SignupConcurrentInsertRejected(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	a, _ := newTestAuthenticator(t, users)

	_, err := a.Signup(ctx, "bob", "pw", "Employee")
	require.NoError(t, err)

	// Проверка не видит запись, вставка упирается в уникальность
	users.hideOnGet = true
	_, err = a.Signup(ctx, "bob", "pw2", "Employee")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestAuthenticator_SignupValidation(t *testing.T) {
	a, _ := newTestAuthenticator(t, newFakeUserRepo())

	tests := []struct {
		name     string
		username string
		password string
		role     string
	}{
		{"пустой username", "", "pw", "Admin"},
		{"пустой пароль", "alice", "", "Admin"},
		{"неизвестная роль", "alice", "pw", "Root"},
		{"роль в нижнем регистре", "alice", "pw", "admin"},
		{"пароль длиннее 72 байт", "alice", strings.Repeat("p", 73), "Admin"},
		{"72 байта кириллицей с хвостом", "alice", strings.Repeat("я", 36) + "x", "Admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Signup(context.Background(), tt.username, tt.password, tt.role)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAuthenticator_LoginFailuresIndistinguishable(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAuthenticator(t, newFakeUserRepo())

	_, err := a.Signup(ctx, "alice", "right", "Employee")
	require.NoError(t, err)

	_, wrongPassword := a.Login(ctx, "alice", "wrong")
	_, unknownUser := a.Login(ctx, "nobody", "right")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestAuthenticator_LoginStoreFailure(t *testing.T) {
	users := newFakeUserRepo()
	users.err = errors.New("соединение разорвано")
	a, _ := newTestAuthenticator(t, users)

	_, err := a.Login(context.Background(), "alice", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}
