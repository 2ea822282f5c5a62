package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are issued by the external auth service.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// ParseToken validates an HS256 access token and returns its identity.
func ParseToken(secret, raw string) (*domain.User, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	user, err := domain.NewUser(id, claims.Name, claims.Email)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	// browsers cannot set headers on a websocket upgrade
	return c.Query("token")
}

// AuthMiddleware attaches the token identity as "identity". A bad token is
// always rejected; a missing one only when cfg.Required.
func AuthMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" || cfg.JWTSecret == "" {
			if cfg.Required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized"})
				return
			}
			c.Next()
			return
		}
		user, err := ParseToken(cfg.JWTSecret, raw)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized, token failed"})
			return
		}
		c.Set("identity", user)
		c.Next()
	}
}

func identityOf(c *gin.Context) *domain.User {
	if v, ok := c.Get("identity"); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}
