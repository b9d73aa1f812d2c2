package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// contextKey is the type for context keys to avoid collisions.
type contextKey string

// authenticatedOwnerIDKey is the context key for authenticated owner ID.
// This key is used to store the authenticated owner ID in the Echo context
// after successful authentication.
const authenticatedOwnerIDKey contextKey = "authenticated_owner_id"

// AnonymousOwnerID is set on requests when authentication is disabled.
const AnonymousOwnerID = "anonymous"

// BearerAuthMiddleware creates an Echo middleware that authenticates requests
// with an "Authorization: Bearer <token>" header.
//
// This middleware:
//  1. Compares the presented token against the configured tokens
//  2. Derives the owner ID from the matching token
//  3. Sets the owner ID in Echo context for downstream handlers
//  4. Returns 401 Unauthorized with a JSON error otherwise
//
// With no tokens configured authentication is disabled and every request
// runs as AnonymousOwnerID.
//
// Example usage:
//
//	api := e.Group("/api", auth.BearerAuthMiddleware(cfg.AuthTokens()))
func BearerAuthMiddleware(tokens []string) echo.MiddlewareFunc {
	type credential struct {
		token   []byte
		ownerID string
	}
	creds := make([]credential, 0, len(tokens))
	for _, t := range tokens {
		ownerID, err := DeriveOwnerID(t)
		if err != nil {
			continue
		}
		creds = append(creds, credential{token: []byte(t), ownerID: ownerID})
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(creds) == 0 {
				c.Set(string(authenticatedOwnerIDKey), AnonymousOwnerID)
				return next(c)
			}

			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return unauthorized(c, "missing bearer token")
			}

			presented := []byte(token)
			ownerID := ""
			// Check every credential so timing does not reveal which matched.
			for _, cred := range creds {
				if subtle.ConstantTimeCompare(presented, cred.token) == 1 {
					ownerID = cred.ownerID
				}
			}
			if ownerID == "" {
				return unauthorized(c, "invalid token")
			}

			c.Set(string(authenticatedOwnerIDKey), ownerID)
			return next(c)
		}
	}
}

// OwnerID returns the authenticated owner ID, or "" outside the middleware.
func OwnerID(c echo.Context) string {
	id, _ := c.Get(string(authenticatedOwnerIDKey)).(string)
	return id
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c echo.Context, details string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="contractd"`)
	return c.JSON(http.StatusUnauthorized, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "unauthorized",
			"message": "authentication failed",
			"data": map[string]interface{}{
				"details": details,
			},
		},
	})
}
