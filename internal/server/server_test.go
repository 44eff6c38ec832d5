package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arturkryukov/container-manager/internal/api/handlers"
	"github.com/arturkryukov/container-manager/internal/api/middleware"
	"github.com/arturkryukov/container-manager/internal/api/openapi"
	"github.com/arturkryukov/container-manager/internal/auth"
	"github.com/arturkryukov/container-manager/internal/domain/model"
	"github.com/arturkryukov/container-manager/internal/engine"
	"github.com/arturkryukov/container-manager/internal/service"
)

const testSecret = "test-secret-for-router"

type testEnv struct {
	router http.Handler
	engine *stubEngine
	events *memEvents
	codec  *auth.TokenCodec
}

type envOptions struct {
	maxPerHour   int
	loginLimiter *middleware.IPRateLimiter
	dbStatus     string
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	if opts.maxPerHour == 0 {
		opts.maxPerHour = 5
	}
	if opts.dbStatus == "" {
		opts.dbStatus = "ok"
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	codec, err := auth.NewTokenCodec(testSecret, "HS256", 30*time.Minute)
	require.NoError(t, err)
	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	users := &memUsers{users: make(map[string]model.User)}
	quotas := &memRateLimits{records: make(map[string]model.RateLimitConfig)}
	events := &memEvents{}
	eng := &stubEngine{}

	limiter := service.NewWindowLimiter(events, opts.maxPerHour, nil, logger)
	api := handlers.NewAPIHandler(
		handlers.NewHealthHandler(stubChecker{status: opts.dbStatus}, stubChecker{status: "ok"}),
		service.NewAuthenticator(users, hasher, codec, logger),
		service.NewQuotaService(quotas, nil, logger),
		service.NewImageService(eng, "default:latest", logger),
		service.NewContainerService(eng, limiter, logger),
		service.NewVolumeService(eng, logger),
		service.NewAdminService(users, events, logger),
		logger,
	)

	doc, err := openapi.Load(context.Background())
	require.NoError(t, err)

	router := NewRouter(Routes{
		API:          api,
		Auth:         middleware.NewAuthenticator(codec, logger),
		LoginLimiter: opts.loginLimiter,
		OpenAPI:      doc,
	}, logger)

	return &testEnv{router: router, engine: eng, events: events, codec: codec}
}

func (e *testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()

	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// signup регистрирует пользователя и возвращает его токен.
func (e *testEnv) signup(t *testing.T, username, role string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username,
		"password": username + "-password",
		"role":     role,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeToken(t, rec)
}

func decodeToken(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)
	assert.Equal(t, "bearer", body.TokenType)
	assert.Equal(t, int64(1800), body.ExpiresIn)
	return body.AccessToken
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func TestRateLimitEndToEnd(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	env.signup(t, "alice", "Admin")

	rec := env.login(t, "alice", "alice-password")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decodeToken(t, rec)

	rec = env.do(t, http.MethodGet, "/rate-limit/u1", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/rate-limit/u1/set?limit=5&time_window=3600", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/rate-limit/u1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var quota struct {
		UserID     string `json:"user_id"`
		Limit      int    `json:"limit"`
		TimeWindow int    `json:"time_window"`
		Remaining  int    `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quota))
	assert.Equal(t, "u1", quota.UserID)
	assert.Equal(t, 5, quota.Limit)
	assert.Equal(t, 3600, quota.TimeWindow)
	assert.Equal(t, 5, quota.Remaining)

	rec = env.do(t, http.MethodPost, "/rate-limit/u1/set?limit=7&time_window=60", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", errorCode(t, rec))

	rec = env.do(t, http.MethodPut, "/rate-limit/u1/update?limit=10&time_window=60", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/rate-limit/u1", token, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quota))
	assert.Equal(t, 10, quota.Limit)
	assert.Equal(t, 10, quota.Remaining)

	rec = env.do(t, http.MethodPut, "/rate-limit/u2/update?limit=10&time_window=60", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitQueryValidation(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token := env.signup(t, "alice", "Admin")

	tests := []string{
		"/rate-limit/u1/set",
		"/rate-limit/u1/set?limit=5",
		"/rate-limit/u1/set?limit=abc&time_window=60",
		"/rate-limit/u1/set?limit=0&time_window=60",
		"/rate-limit/u1/set?limit=5&time_window=-1",
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, target, token, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
		})
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	manager := env.signup(t, "bob", "Manager")
	employee := env.signup(t, "carol", "Employee")

	routes := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/rate-limit/u1"},
		{http.MethodPost, "/rate-limit/u1/set?limit=5&time_window=60"},
		{http.MethodPut, "/rate-limit/u1/update?limit=5&time_window=60"},
		{http.MethodPost, "/docker/containers/list"},
		{http.MethodPost, "/docker/containers/web/start"},
		{http.MethodPost, "/docker/containers/web/stop"},
		{http.MethodPost, "/docker/containers/web/delete"},
		{http.MethodPost, "/docker/volumes/create"},
		{http.MethodDelete, "/docker/volumes/data/delete"},
		{http.MethodGet, "/admin/users"},
		{http.MethodGet, "/admin/users/bob"},
		{http.MethodDelete, "/admin/users/bob/delete"},
		{http.MethodGet, "/admin/containers"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.target, func(t *testing.T) {
			rec := env.do(t, rt.method, rt.target, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			for _, token := range []string{manager, employee} {
				rec = env.do(t, rt.method, rt.target, token, nil)
				assert.Equal(t, http.StatusForbidden, rec.Code)
				assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
			}
		})
	}
}

func TestAuthenticatedRoutesOpenToAnyRole(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	employee := env.signup(t, "carol", "Employee")

	routes := []struct {
		method string
		target string
		body   any
	}{
		{http.MethodGet, "/docker/images", nil},
		{http.MethodPost, "/docker/images/build", map[string]any{"path": "/srv/app", "tag": "app:1"}},
		{http.MethodPost, "/docker/images/github-build", map[string]any{"github_url": "https://github.com/org/repo.git"}},
		{http.MethodPost, "/docker/registry/login", map[string]any{"username": "u", "password": "p"}},
		{http.MethodPost, "/docker/images/push", map[string]any{"local_tag": "app:1", "remote_repo": "registry.example.com/app:1"}},
		{http.MethodPost, "/docker/images/pull", map[string]any{"repository": "nginx:latest"}},
		{http.MethodDelete, "/docker/images/nginx:latest/delete", nil},
		{http.MethodPost, "/docker/containers", map[string]any{"image": "nginx:latest"}},
		{http.MethodPost, "/docker/containers/advanced", map[string]any{"image": "nginx:latest", "mem_limit": "64m"}},
		{http.MethodPost, "/docker/containers/web/logs", nil},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.target, func(t *testing.T) {
			rec := env.do(t, rt.method, rt.target, "", rt.body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			rec = env.do(t, rt.method, rt.target, employee, rt.body)
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		})
	}
}

func TestAdminCanManageContainers(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	admin := env.signup(t, "alice", "Admin")

	rec := env.do(t, http.MethodPost, "/docker/containers/list", admin, map[string]any{"all": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "web", list[0]["name"])

	rec = env.do(t, http.MethodPost, "/docker/containers/web/stop?timeout=5", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/docker/containers/web/stop?timeout=soon", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/docker/volumes/create", admin, map[string]any{"name": "data"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/users/alice", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestMissingAndInvalidToken(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodGet, "/docker/images", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/docker/images", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
	oldCodec, err := auth.NewTokenCodec(testSecret, "HS256", 30*time.Minute, auth.WithClock(past))
	require.NoError(t, err)
	expired, err := oldCodec.Issue("alice", "Admin")
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/docker/images", expired.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_EXPIRED", errorCode(t, rec))
}

func TestSignupAndLoginErrors(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.signup(t, "alice", "Admin")

	rec := env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "alice", "password": "other", "role": "Employee",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "dave", "password": "pw", "role": "Root",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "erin", "password": strings.Repeat("x", 73), "role": "Employee",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	wrongPassword := env.login(t, "alice", "wrong")
	unknownUser := env.login(t, "nobody", "wrong")
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())

	rec = env.login(t, "alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunContainerRateLimited(t *testing.T) {
	env := newTestEnv(t, envOptions{maxPerHour: 2})
	token := env.signup(t, "carol", "Employee")

	for i := range 2 {
		rec := env.do(t, http.MethodPost, "/docker/containers", token, map[string]any{
			"image": "nginx:latest",
			"name":  fmt.Sprintf("web-%d", i),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodPost, "/docker/containers", token, map[string]any{"image": "nginx:latest"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), "2 в час")

	assert.Equal(t, 2, env.engine.runCount())
	assert.Equal(t, 2, env.events.count())

	// Лимит персональный
	other := env.signup(t, "dave", "Employee")
	rec = env.do(t, http.MethodPost, "/docker/containers", other, map[string]any{"image": "nginx:latest"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunContainerEngineErrors(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token := env.signup(t, "carol", "Employee")

	env.engine.runErr = fmt.Errorf("no such image: %w", engine.ErrNotFound)
	rec := env.do(t, http.MethodPost, "/docker/containers", token, map[string]any{"image": "missing:1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.engine.runErr = fmt.Errorf("daemon exploded")
	rec = env.do(t, http.MethodPost, "/docker/containers", token, map[string]any{"image": "nginx:latest"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "daemon exploded")

	assert.Equal(t, 0, env.events.count())

	rec = env.do(t, http.MethodPost, "/docker/containers", token, map[string]any{"name": "no-image"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/docker/containers", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveImageEscapedName(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token := env.signup(t, "carol", "Employee")

	rec := env.do(t, http.MethodDelete, "/docker/images/library%2Fnginx:latest/delete", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "library/nginx:latest", env.engine.removedImage)
}

func TestLoginThrottle(t *testing.T) {
	env := newTestEnv(t, envOptions{loginLimiter: middleware.NewIPRateLimiter(0.001, 1)})

	first := env.login(t, "nobody", "pw")
	assert.Equal(t, http.StatusUnauthorized, first.Code)

	second := env.login(t, "nobody", "pw")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, second))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgresql"`)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cm_http_requests_total")

	failing := newTestEnv(t, envOptions{dbStatus: "fail"})
	rec = failing.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutesDocumented(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	doc, err := openapi.Load(context.Background())
	require.NoError(t, err)

	routes, ok := env.router.(chi.Routes)
	require.True(t, ok)

	var count int
	err = chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if route == "/openapi.json" {
			return nil
		}
		count++
		assert.True(t, doc.HasOperation(method, route), "%s %s не описан", method, route)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 28, count)

	rec := env.do(t, http.MethodGet, "/openapi.json", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
