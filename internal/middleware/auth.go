package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/castframework/cast1-sub000/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware verifies HMAC signed bearer tokens issued to oracle callers
type AuthMiddleware struct {
	secret []byte
	issuer string
	logger *logrus.Logger
}

// NewAuthMiddleware create JWT verification middleware. An empty secret disables verification.
func NewAuthMiddleware(cfg config.AuthConfig, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		logger: logger,
	}
}

// Enabled reports whether tokens are checked
func (a *AuthMiddleware) Enabled() bool {
	return len(a.secret) > 0
}

// RequireAuth rejects requests without a valid bearer token
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.reject(c, "Authentication required", "Missing Authorization header. Please provide a valid JWT token.", "MISSING_AUTH_HEADER")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.reject(c, "Invalid authorization format", "Authorization header must be in format: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if tokenString == "" {
			a.reject(c, "Empty token", "Token cannot be empty", "EMPTY_TOKEN")
			return
		}

		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Warn("JWT verification failed")
			a.abort(c, "Invalid token", "The provided token is invalid or expired", "INVALID_TOKEN")
			return
		}

		c.Set("subject", claims.Subject)
		c.Set("claims", claims)
		c.Next()
	}
}

// ValidateToken parses and verifies a token against the configured secret and issuer
func (a *AuthMiddleware) ValidateToken(tokenString string) (*jwt.RegisteredClaims, error) {
	var opts []jwt.ParserOption
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func (a *AuthMiddleware) reject(c *gin.Context, errMsg, message, code string) {
	a.logger.WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"code":   code,
	}).Warn("JWT verification failed - bad Authorization header")
	a.abort(c, errMsg, message, code)
}

func (a *AuthMiddleware) abort(c *gin.Context, errMsg, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   errMsg,
		"message": message,
		"code":    code,
	})
}
