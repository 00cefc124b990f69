package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

const sessionCookie = "automag_session"

type sessionClaims struct {
	LoggedIn bool `json:"logged_in"`
	jwt.RegisteredClaims
}

// Session выдаёт и проверяет подписанную cookie оператора.
type Session struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSession создаёт сессию с подписью HS256.
func NewSession(secret string, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Session{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue ставит cookie с флагом logged_in.
func (s *Session) Issue(w http.ResponseWriter) error {
	if len(s.secret) == 0 {
		return errors.New("session secret is empty")
	}
	now := s.now()
	claims := sessionClaims{
		LoggedIn: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(s.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Valid проверяет подпись, срок и флаг logged_in.
func (s *Session) Valid(r *http.Request) bool {
	if len(s.secret) == 0 {
		return false
	}
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(cookie.Value, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return false
	}
	return claims.LoggedIn
}

// Require пропускает только запросы с действующей сессией, остальных отправляет на страницу входа.
func (s *Session) Require(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Valid(r) {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}
