package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Context keys set by Authenticate
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// PermissionChecker resolves user roles and role grants, usually through the cached authorizer.
type PermissionChecker interface {
	UserRole(ctx context.Context, userID string) (string, error)
	HasPermission(ctx context.Context, role, code string) (bool, error)
}

// Guard builds route middleware that admits callers holding every listed permission.
type Guard interface {
	Require(perms ...string) gin.HandlerFunc
}

// Authenticator validates HS256 tokens issued by the identity service and checks
// role permissions. Tokens carry the user id in "sub" and the role name in "role";
// the role on the user row wins over the claim so guards and services agree.
type Authenticator struct {
	secret []byte
	perms  PermissionChecker
	log    *zap.Logger
}

func NewAuthenticator(secret []byte, perms PermissionChecker, log *zap.Logger) *Authenticator {
	return &Authenticator{secret: secret, perms: perms, log: log}
}

// tokenFromRequest reads the access_token cookie, falling back to the Authorization header.
func tokenFromRequest(c *gin.Context) (string, error) {
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token, nil
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization is missing")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization format. Expected 'Bearer <token>'")
	}
	return parts[1], nil
}

// ParseToken validates a token string and returns the user id and role it carries.
func (a *Authenticator) ParseToken(tokenString string) (userID, role string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("Invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("Invalid token claims")
	}
	userID, _ = claims["sub"].(string)
	role, _ = claims["role"].(string)
	if userID == "" || role == "" {
		return "", "", errors.New("Token is missing subject or role")
	}
	return userID, role, nil
}

// Authenticate requires a valid token and stores the caller identity in the context.
func (a *Authenticator) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.identify(c) {
			return
		}
		c.Next()
	}
}

// identify resolves the caller from the request token, aborting with 401 on failure.
func (a *Authenticator) identify(c *gin.Context) bool {
	tokenString, err := tokenFromRequest(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
		return false
	}
	userID, claimed, err := a.ParseToken(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
		return false
	}
	role, err := a.perms.UserRole(c.Request.Context(), userID)
	if err != nil {
		a.log.Error("role lookup failed", zap.String("user_id", userID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
		return false
	}
	if role == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unknown user"))
		return false
	}
	if role != claimed {
		a.log.Debug("token role differs from user role", zap.String("user_id", userID),
			zap.String("claimed", claimed), zap.String("role", role))
	}
	c.Set(ContextUserID, userID)
	c.Set(ContextUserRole, role)
	return true
}

// Require authenticates the caller and checks that their role holds every permission.
func (a *Authenticator) Require(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextUserRole); !ok && !a.identify(c) {
			return
		}
		role := c.GetString(ContextUserRole)
		for _, code := range perms {
			ok, err := a.perms.HasPermission(c.Request.Context(), role, code)
			if err != nil {
				a.log.Error("permission lookup failed", zap.String("role", role), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
				return
			}
			if !ok {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+code+"'"))
				return
			}
		}
		c.Next()
	}
}
