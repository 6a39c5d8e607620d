package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/Dhoini/billing-sync/pkg/res"
)

const (
	// ContextUserIDKey ключ для хранения ID пользователя в gin.Context
	ContextUserIDKey = "userID"
	// ContextUserEmailKey ключ для хранения email из токена
	ContextUserEmailKey = "userEmail"

	bearerScheme = "Bearer"
)

// Ошибки проверки токена, текст уходит клиенту в теле 401
var (
	ErrTokenMissing   = errors.New("missing authorization token")
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSubject   = errors.New("user id (sub) missing in token")
	ErrTokenScope     = errors.New("insufficient token permissions")
)

// TokenValidator разбирает и проверяет строку токена
type TokenValidator interface {
	Validate(tokenString string) (*BillingClaims, error)
}

// BillingClaims claims токена доступа к клиентским маршрутам биллинга
type BillingClaims struct {
	Email string `json:"email"`
	// Scope список прав через пробел
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// HasScope проверяет, что токен выдан хотя бы с одним из прав. Пустой список не ограничивает.
func (c *BillingClaims) HasScope(scopes ...string) bool {
	if len(scopes) == 0 {
		return true
	}
	granted := strings.Fields(c.Scope)
	for _, scope := range scopes {
		if slices.Contains(granted, scope) {
			return true
		}
	}
	return false
}

// JWTMiddleware проверяет bearer-токен на клиентских маршрутах
type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

// NewJWTMiddleware создает middleware аутентификации
func NewJWTMiddleware(log *logger.Logger, validator TokenValidator) *JWTMiddleware {
	return &JWTMiddleware{log: log, validator: validator}
}

// RequireAuth пропускает запрос только с валидным токеном и одним из requiredScopes
func (m *JWTMiddleware) RequireAuth(requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.authenticate(c.GetHeader("Authorization"), requiredScopes)
		if err != nil {
			m.log.Warnw("HTTP authentication failed", "path", c.Request.URL.Path, "error", err)
			res.JsonResponse(c.Writer, res.ErrorResponse{Error: err.Error()}, http.StatusUnauthorized)
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.Subject)
		c.Set(ContextUserEmailKey, claims.Email)
		m.log.Debugw("Request authenticated", "userID", claims.Subject)
		c.Next()
	}
}

func (m *JWTMiddleware) authenticate(header string, requiredScopes []string) (*BillingClaims, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, ErrTokenMissing
	}
	claims, err := m.validator.Validate(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrTokenSubject
	}
	if !claims.HasScope(requiredScopes...) {
		return nil, ErrTokenScope
	}
	return claims, nil
}

// bearerToken извлекает токен из "Authorization: Bearer <token>"
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HMACTokenValidator проверяет токены HS256 общим секретом.
type HMACTokenValidator struct {
	Secret []byte
	// Leeway допуск расхождения часов при проверке exp/nbf
	Leeway time.Duration
}

// Validate разбирает токен и приводит ошибки jwt к ошибкам пакета
func (v *HMACTokenValidator) Validate(tokenString string) (*BillingClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.Leeway),
	)

	claims := &BillingClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.Secret, nil
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("invalid token: %w", err)
	}
}
