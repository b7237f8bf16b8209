// Package auth turns bearer tokens into ledger callers. It is the only place
// that knows how tokens are signed and which claims they carry.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bankadmin/ledger/internal/ledger"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the token payload. UserID is always carried as "userId".
type Claims struct {
	UserID int64       `json:"userId"`
	Role   ledger.Role `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify parses a signed token and returns the caller it represents.
func (v *Verifier) Verify(token string) (ledger.Caller, error) {
	var claims Claims

	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ledger.Caller{}, ErrTokenExpired
		}

		return ledger.Caller{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.UserID <= 0 {
		return ledger.Caller{}, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}

	if claims.Role != ledger.RoleCustomer && claims.Role != ledger.RoleEmployee {
		return ledger.Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return ledger.Caller{UserID: claims.UserID, Role: claims.Role}, nil
}

// Sign issues an HS256 token for caller. Token issuance for end users lives
// outside this service; Sign exists for tooling and tests.
func Sign(secret string, caller ledger.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: caller.UserID,
		Role:   caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type contextKey struct{}

// WithCaller stores caller in ctx.
func WithCaller(ctx context.Context, caller ledger.Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, caller)
}

// CallerFrom returns the caller put in ctx by Middleware.
func CallerFrom(ctx context.Context) (ledger.Caller, bool) {
	caller, ok := ctx.Value(contextKey{}).(ledger.Caller)
	return caller, ok
}

// Middleware rejects requests without a valid bearer token with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, ErrMissingToken)
			return
		}

		caller, err := v.Verify(token)
		if err != nil {
			slog.Debug("rejected token", "path", r.URL.Path, "error", err)
			unauthorized(w, err)

			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}

	return strings.TrimSpace(token), true
}

func unauthorized(w http.ResponseWriter, err error) {
	msg := "invalid token"

	switch {
	case errors.Is(err, ErrMissingToken):
		msg = "access denied"
	case errors.Is(err, ErrTokenExpired):
		msg = "token expired"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="ledger"`)
	w.WriteHeader(http.StatusUnauthorized)

	if err := json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": msg}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
