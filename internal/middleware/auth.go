package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
)

const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
)

var errNoToken = errors.New("missing bearer token")

// AuthMiddleware rejects requests without a valid bearer token and puts
// the caller's id in the context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authenticate(c, secret); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
				"code":  apperr.CodeUnauthorized,
			})
			return
		}
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and
// lets anonymous requests through.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authenticate(c, secret); err != nil && !errors.Is(err, errNoToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
				"code":  apperr.CodeUnauthorized,
			})
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, secret string) error {
	header := c.GetHeader("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return errNoToken
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid token claims")
	}
	rawID, _ := claims[UserIDKey].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return errors.New("invalid user_id claim")
	}

	c.Set(UserIDKey, userID)
	if name, ok := claims[UsernameKey].(string); ok {
		c.Set(UsernameKey, name)
	}
	return nil
}

// UserID returns the authenticated caller, if any.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(UserIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := raw.(uuid.UUID)
	return id, ok
}

func Username(c *gin.Context) string {
	return c.GetString(UsernameKey)
}

// IssueToken signs an access token in the format AuthMiddleware accepts.
func IssueToken(secret string, userID uuid.UUID, username string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		UserIDKey:   userID.String(),
		UsernameKey: username,
		"exp":       time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
