package middleware

import (
	"errors"
	"net/http"
	"strings"

	"fleetops/internal/service"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Context keys set for authenticated requests
const (
	UserIDKey   = "userID"
	UserRoleKey = "userRole"
)

var errMissingToken = errors.New("authorization is missing")

// Auth verifies access tokens and consults the authorizer on every request
type Auth struct {
	secret []byte
	authz  service.Authorizer
	log    logrus.FieldLogger
}

func NewAuth(secret string, authz service.Authorizer, log logrus.FieldLogger) *Auth {
	return &Auth{secret: []byte(secret), authz: authz, log: log}
}

// SetTokenCookie stores the access token as an HttpOnly cookie
func SetTokenCookie(c *gin.Context, accessToken string, secure bool) {
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie("access_token", accessToken, int(service.TokenTTL.Seconds()), "/", "", secure, true)
}

// ClearTokenCookie removes the access token cookie
func ClearTokenCookie(c *gin.Context, secure bool) {
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie("access_token", "", -1, "/", "", secure, true)
}

// tokenFromRequest tries the cookie, then the bearer header. Websocket handshakes may
// pass the token as a query parameter since browsers cannot set headers on them.
func tokenFromRequest(c *gin.Context) (string, error) {
	if tokenString, err := c.Cookie("access_token"); err == nil && tokenString != "" {
		return tokenString, nil
	}

	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errors.New("invalid authorization format, expected 'Bearer <token>'")
		}
		return parts[1], nil
	}

	if websocket.IsWebSocketUpgrade(c.Request) {
		if tokenString := c.Query("token"); tokenString != "" {
			return tokenString, nil
		}
	}
	return "", errMissingToken
}

// ParseToken validates an HS256 token and returns its subject and role claims
func (a *Auth) ParseToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	role, ok := claims["role"].(string)
	if !ok {
		return "", "", errors.New("role not found in token")
	}
	return sub, role, nil
}

func (a *Auth) authenticate(c *gin.Context) bool {
	tokenString, err := tokenFromRequest(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
		return false
	}
	userID, role, err := a.ParseToken(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
		return false
	}

	c.Set(UserIDKey, userID)
	c.Set(UserRoleKey, role)
	return true
}

// RequireAuth only validates the token
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			return
		}
		c.Next()
	}
}

// RequirePermission validates the token and checks that the caller's role currently
// holds permission. Nothing is cached between requests.
func (a *Auth) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			return
		}

		role := c.GetString(UserRoleKey)
		allowed, err := a.authz.Allowed(c.Request.Context(), role, permission)
		if err != nil {
			a.log.WithError(err).WithField("permission", permission).Error("permission check failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorWithCode(http.StatusForbidden, "FORBIDDEN", "Access denied: missing permission '"+permission+"'", nil))
			return
		}

		c.Next()
	}
}
