package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/Dhoini/entitlement-service/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextCallerKey holds the *domain.Caller of an authenticated request
	ContextCallerKey = "caller"
	authHeaderPrefix = "Bearer "
)

type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims are the claims issued by the identity provider
type TokenClaims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Caller converts the claims into the identity the services work with
func (c *TokenClaims) Caller() *domain.Caller {
	caller := &domain.Caller{
		UserID: c.Subject,
		Email:  c.Email,
		Role:   c.Role,
	}
	if caller.Role == "" {
		caller.Role = domain.RoleUser
	}
	if c.ExpiresAt != nil {
		caller.ExpiresAt = c.ExpiresAt.Time
	}
	return caller
}

type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

func NewJWTMiddleware(log *logger.Logger, validator TokenValidator) *JWTMiddleware {
	return &JWTMiddleware{
		log:       log,
		validator: validator,
	}
}

// RequireAuth rejects requests without a valid bearer token. An expired
// token gets its own error code so clients can re-login instead of showing
// a paywall.
func (m *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.handleAuthError(c, domain.ErrUnauthenticated, "Missing authorization token")
			return
		}

		claims, err := m.validator.Validate(strings.TrimPrefix(authHeader, authHeaderPrefix))
		if err != nil {
			m.handleAuthError(c, err, fmt.Sprintf("Token validation failed: %v", err))
			return
		}
		if claims.Subject == "" {
			m.handleAuthError(c, domain.ErrUnauthenticated, "User ID (sub) missing in token")
			return
		}

		caller := claims.Caller()
		c.Set(ContextCallerKey, caller)
		m.log.Debugw("User authenticated", "user_id", caller.UserID, "role", caller.Role)
		c.Next()
	}
}

// RequireRole lets through callers holding one of the roles
func (m *JWTMiddleware) RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := CallerFrom(c)
		if caller == nil {
			m.handleAuthError(c, domain.ErrUnauthenticated, "Missing caller")
			return
		}
		for _, role := range roles {
			if caller.Role == role {
				c.Next()
				return
			}
		}
		m.log.Warnw("Insufficient role", "path", c.Request.URL.Path, "user_id", caller.UserID, "role", caller.Role)
		res.JsonResponse(c.Writer, res.ErrorResponse{
			Error: "Insufficient permissions",
			Code:  res.CodeForbidden,
		}, http.StatusForbidden)
		c.Abort()
	}
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, err error, message string) {
	code := res.CodeUnauthenticated
	if errors.Is(err, domain.ErrSessionExpired) {
		code = res.CodeSessionExpired
	}
	m.log.Warnw("HTTP authentication failed", "path", c.Request.URL.Path, "code", code, "error", message)
	res.JsonResponse(c.Writer, res.ErrorResponse{
		Error: message,
		Code:  code,
	}, http.StatusUnauthorized)
	c.Abort()
}

// CallerFrom returns the caller stored by RequireAuth, or nil
func CallerFrom(c *gin.Context) *domain.Caller {
	value, ok := c.Get(ContextCallerKey)
	if !ok {
		return nil
	}
	caller, _ := value.(*domain.Caller)
	return caller
}

// DefaultTokenValidator checks HMAC-signed tokens
type DefaultTokenValidator struct {
	Secret []byte
	// Leeway tolerates clock skew on exp and nbf
	Leeway time.Duration
}

func (v *DefaultTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	}, jwt.WithLeeway(v.Leeway))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: token expired", domain.ErrSessionExpired)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: malformed token", domain.ErrUnauthenticated)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: invalid token signature", domain.ErrUnauthenticated)
		default:
			return nil, fmt.Errorf("%w: invalid token: %v", domain.ErrUnauthenticated, err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthenticated)
}
