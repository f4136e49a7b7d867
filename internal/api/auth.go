package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jonesrussell/north-cloud/relister/internal/logger"
)

const (
	apiKeyHeader = "X-API-Key"
	claimsKey    = "claims"
	codeAuth     = "UNAUTHORIZED"
)

// AuthConfig holds the credentials accepted on /api/v1. A request passes
// with a matching X-API-Key header or an HMAC-signed bearer token. With
// neither configured the API is open.
type AuthConfig struct {
	APIKey    string
	JWTSecret string
}

// Enabled reports whether any credential is configured.
func (a AuthConfig) Enabled() bool {
	return a.APIKey != "" || a.JWTSecret != ""
}

// Claims are the bearer token claims.
type Claims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

// ProtectedGroup creates a router group behind AuthMiddleware.
func ProtectedGroup(router *gin.Engine, path string, cfg AuthConfig, log logger.Logger) *gin.RouterGroup {
	group := router.Group(path)
	if cfg.Enabled() {
		group.Use(AuthMiddleware(cfg, log))
	}
	return group
}

// AuthMiddleware rejects requests without a valid API key or bearer token.
func AuthMiddleware(cfg AuthConfig, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APIKey != "" {
			if key := c.GetHeader(apiKeyHeader); key != "" &&
				subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1 {
				c.Next()
				return
			}
		}

		if cfg.JWTSecret != "" {
			if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
				claims, err := parseToken(token, cfg.JWTSecret)
				if err == nil {
					c.Set(claimsKey, claims)
					c.Next()
					return
				}
			}
		}

		log.Warn("Rejected unauthenticated request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.String("client_ip", c.ClientIP()),
		)
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error: "invalid or missing credentials",
			Code:  codeAuth,
		})
	}
}

// GetClaims returns the bearer token claims of an authenticated request.
// Requests authenticated by API key carry none.
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

func parseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
