// auth.go — middleware аутентификации (Bearer access token) и проверки роли.
// Authenticate восстанавливает claim из токена и кладёт его в контекст,
// RequireRole пропускает только вызывающих с точно совпадающей ролью.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/arturkryukov/container-manager/internal/api/errors"
	"github.com/arturkryukov/container-manager/internal/auth"
	"github.com/arturkryukov/container-manager/internal/domain/model"
	"github.com/arturkryukov/container-manager/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaim — claim вызывающего в контексте запроса.
	ContextKeyClaim contextKey = "auth_claim"
)

// ErrMissingToken — заголовок Authorization отсутствует или не в формате Bearer.
var ErrMissingToken = errors.New("отсутствует access token")

// TokenDecoder восстанавливает claim из access token.
// Реализуется auth.TokenCodec.
type TokenDecoder interface {
	Decode(token string) (model.Claim, error)
}

// Authenticator — middleware аутентификации по Bearer token.
type Authenticator struct {
	decoder TokenDecoder
	logger  *slog.Logger
}

// NewAuthenticator создаёт middleware аутентификации.
func NewAuthenticator(decoder TokenDecoder, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		decoder: decoder,
		logger:  logger.With(slog.String("component", "auth_middleware")),
	}
}

// Middleware возвращает HTTP middleware: извлекает Bearer token,
// проверяет его и помещает claim в контекст.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				apierrors.Unauthorized(w, "Требуется аутентификация: ожидается Authorization: Bearer <token>")
				return
			}

			claim, err := a.decoder.Decode(tokenString)
			if err != nil {
				a.logger.Debug("Токен не прошёл проверку",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				if errors.Is(err, auth.ErrTokenExpired) {
					apierrors.TokenExpired(w, "Срок действия токена истёк")
					return
				}
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaim, claim)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization.
// Схема сравнивается без учёта регистра.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingToken
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// RequireRole возвращает middleware, требующий ровно указанную роль.
// Должен использоваться ПОСЛЕ Authenticator.Middleware().
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claim, ok := ClaimFromContext(r.Context())
			if !ok {
				apierrors.Unauthorized(w, "Требуется аутентификация")
				return
			}

			if _, err := rbac.RequireRole(claim, role); err != nil {
				apierrors.Forbidden(w, "Недостаточно прав: требуется роль "+role)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimFromContext извлекает claim из контекста запроса.
func ClaimFromContext(ctx context.Context) (model.Claim, bool) {
	claim, ok := ctx.Value(ContextKeyClaim).(model.Claim)
	return claim, ok
}

// UsernameFromContext возвращает имя вызывающего или пустую строку.
func UsernameFromContext(ctx context.Context) string {
	claim, _ := ClaimFromContext(ctx)
	return claim.Username
}

// WithClaim помещает claim в контекст (для тестов).
func WithClaim(ctx context.Context, claim model.Claim) context.Context {
	return context.WithValue(ctx, ContextKeyClaim, claim)
}
