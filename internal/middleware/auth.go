package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/Davincible/assistant-bridge/internal/config"
)

// UserIDClaim is the JWT claim identifying the caller.
const UserIDClaim = "user_id"

type contextKey string

const userIDKey contextKey = "user_id"

// UserID returns the caller identity placed in ctx by the auth middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID stores a caller identity in ctx.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

var (
	errNoToken    = errors.New("no authentication token provided")
	errInvalidKey = errors.New("invalid API key")
)

type AuthMiddleware struct {
	config *config.Manager
	logger *slog.Logger
}

// NewAuthMiddleware accepts either the static bridge key or an HS256 JWT
// signed with the configured secret. With neither configured every request
// passes.
func NewAuthMiddleware(config *config.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	am := &AuthMiddleware{
		config: config,
		logger: logger,
	}

	return am.middleware
}

func (am *AuthMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := am.authenticate(r)
		if err != nil {
			am.logger.Error("Authentication failed", "error", err, "remote_addr", r.RemoteAddr)
			WriteError(w, http.StatusUnauthorized, "authentication_error", "Bridge credentials not authorized")

			return
		}

		if userID != "" {
			r = r.WithContext(WithUserID(r.Context(), userID))
		}

		next.ServeHTTP(w, r)
	})
}

func (am *AuthMiddleware) authenticate(r *http.Request) (string, error) {
	cfg := am.config.Get()

	if r.URL.Path == "/health" || (cfg.APIKey == "" && cfg.SecretKey == "") {
		return "", nil
	}

	var token string
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	} else if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		token = apiKey
	}

	if token == "" {
		return "", errNoToken
	}

	if cfg.APIKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cfg.APIKey)) == 1 {
		return "", nil
	}

	if cfg.SecretKey == "" {
		return "", errInvalidKey
	}

	return ParseUserToken(token, cfg.SecretKey)
}

// ParseUserToken verifies an HS256 token and returns its user_id claim.
func ParseUserToken(tokenStr, secret string) (string, error) {
	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("invalid JWT: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid JWT claims")
	}

	userID := claimString(claims, UserIDClaim)
	if userID == "" {
		return "", fmt.Errorf("JWT missing %q claim", UserIDClaim)
	}

	return userID, nil
}

// IssueUserToken signs an HS256 token for userID. Used by the CLI and tests.
func IssueUserToken(userID, secret string, claims jwtlib.MapClaims) (string, error) {
	all := jwtlib.MapClaims{UserIDClaim: userID}
	for k, v := range claims {
		all[k] = v
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, all).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// claimString reads a string or numeric claim.
func claimString(claims jwtlib.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
