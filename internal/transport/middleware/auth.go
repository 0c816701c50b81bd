package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

const actorKey = "actor"

type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func CreateToken(secret string, actor entity.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: actor.ID,
		Role:   string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, errors.New("missing token")
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
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

// Auth requires a bearer token and stores the caller as an entity.Actor.
// The system role is reserved for background jobs and never accepted here.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == header {
			tokenStr = ""
		}

		claims, err := ValidateToken(secret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "code": "unauthorized", "error": err.Error()})
			return
		}

		role := entity.Role(claims.Role)
		switch role {
		case entity.RoleCustomer, entity.RoleOwner, entity.RoleAdmin:
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "code": "unauthorized", "error": "unknown role"})
			return
		}
		if claims.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "code": "unauthorized", "error": "token without user"})
			return
		}

		c.Set(actorKey, entity.Actor{ID: claims.UserID, Role: role})
		c.Next()
	}
}

// ActorFrom returns the caller stored by Auth.
func ActorFrom(c *gin.Context) (entity.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return entity.Actor{}, false
	}
	actor, ok := v.(entity.Actor)
	return actor, ok
}
