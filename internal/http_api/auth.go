package http_api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/core-coin/doorbell/internal/models"
)

const (
	claimsKey = "resident_claims"
	RoleAdmin = "admin"
)

// ResidentClaims are the claims of a resident bearer token. The subject is the
// user id.
type ResidentClaims struct {
	AddressID int64  `json:"address_id"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// CurrentUser maps the claims onto the domain's authenticated resident.
func (c *ResidentClaims) CurrentUser() models.CurrentUser {
	return models.CurrentUser{UserID: c.Subject, AddressID: c.AddressID}
}

// TokenVerifier validates HS256 resident tokens. Issuing them belongs to the
// account service; Sign exists for tooling and tests.
type TokenVerifier struct {
	signingKey []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{signingKey: []byte(secret)}
}

func (v *TokenVerifier) Sign(user models.CurrentUser, role string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ResidentClaims{
		AddressID: user.AddressID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	})
	return token.SignedString(v.signingKey)
}

func (v *TokenVerifier) Verify(tokenString string) (*ResidentClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &ResidentClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token has expired")
		}
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := parsed.Claims.(*ResidentClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" || claims.AddressID <= 0 {
		return nil, fmt.Errorf("token is missing resident identity")
	}
	return claims, nil
}

// requireResident rejects requests without a valid bearer token.
func (s *HTTPServer) requireResident() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing bearer token",
			})
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			s.logger.Debug("Rejected bearer token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requireAdmin must run after requireResident.
func (s *HTTPServer) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims := residentClaims(c); claims == nil || claims.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "admin role required",
			})
			return
		}
		c.Next()
	}
}

func residentClaims(c *gin.Context) *ResidentClaims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*ResidentClaims)
	return claims
}
