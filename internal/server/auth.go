package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noteforge/noteforge/internal/service"
)

// Authenticator resolves the optional bearer credential. Session issuance
// belongs to the external identity provider; only the signed subject claim is
// consumed here.
type Authenticator struct {
	secret   []byte
	log      *slog.Logger
	accounts *service.AccountService
}

func NewAuthenticator(secret string, log *slog.Logger, accounts *service.AccountService) *Authenticator {
	return &Authenticator{secret: []byte(secret), log: log, accounts: accounts}
}

type userIDKey struct{}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(userIDKey{}).(int64)
	return v, ok
}

// Middleware parses the Authorization header. Absent header means the guest
// path; a present but invalid token is rejected outright. On a user's first
// authenticated request their coin account is created with the signup bonus.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			http.Error(w, "unsupported authorization scheme", http.StatusUnauthorized)
			return
		}

		userID, err := a.parseSubject(tokenStr)
		if err != nil {
			a.log.Warn("rejected bearer token", "err", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if _, _, err := a.accounts.Ensure(r.Context(), userID); err != nil {
			a.log.Error("ensure account", "user_id", userID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) parseSubject(tokenStr string) (int64, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return 0, fmt.Errorf("token invalid")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return 0, fmt.Errorf("missing subject claim")
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("subject is not a user id: %w", err)
	}
	return userID, nil
}
