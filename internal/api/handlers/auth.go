// auth.go — обработчики /auth/signup и /auth/login.
package handlers

import (
	"net/http"

	apierrors "github.com/arturkryukov/container-manager/internal/api/errors"
	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// signupRequest — тело POST /auth/signup.
type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// tokenResponse — выданный access token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func newTokenResponse(t model.Token) tokenResponse {
	return tokenResponse{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		ExpiresIn:   t.ExpiresIn,
	}
}

// Signup — POST /auth/signup. Регистрирует пользователя и сразу выдаёт токен.
// Доступ: без аутентификации.
func (h *APIHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	token, err := h.auth.Signup(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка регистрации пользователя")
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(token))
}

// Login — POST /auth/login. Тело в form-encoded формате: username, password.
// Доступ: без аутентификации.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		apierrors.ValidationError(w, "Некорректное тело формы: "+err.Error())
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		apierrors.ValidationError(w, "username и password обязательны")
		return
	}

	token, err := h.auth.Login(r.Context(), username, password)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка входа")
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(token))
}
