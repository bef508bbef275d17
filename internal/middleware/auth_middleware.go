package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"mediMeet/domain"
	"mediMeet/pkg/logger"
	"mediMeet/pkg/utils"

	jsonres "mediMeet/pkg/response"

	"github.com/labstack/echo/v4"
)

// IdentityResolver maps the request principal onto the internal user record.
type IdentityResolver interface {
	Reconcile(ctx context.Context, principal domain.Principal) (domain.User, *domain.CreditTransaction, error)
}

// AuthMiddleware validates the provider session token and stores the external
// principal in the request context. Services only ever see the principal as
// an explicit argument.
func AuthMiddleware(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, jsonres.Error(
					"UNAUTHORIZED", "Missing authorization header", nil,
				))
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, jsonres.Error(
					"UNAUTHORIZED", "Invalid authorization format", nil,
				))
			}

			tokenString := tokenParts[1]

			claims, err := utils.ParseSessionToken(tokenString, jwtSecret)
			if err != nil {
				logger.Error("Failed to parse session token", err)
				return c.JSON(http.StatusUnauthorized, jsonres.Error(
					"UNAUTHORIZED", "Invalid token", nil,
				))
			}

			expAt, err := claims.GetExpirationTime()
			if err != nil || expAt == nil {
				return c.JSON(http.StatusForbidden, jsonres.Error(
					"FORBIDDEN", "Status Forbidden", nil,
				))
			}

			if time.Now().After(expAt.Time) {
				return c.JSON(http.StatusForbidden, jsonres.Error(
					"FORBIDDEN", "Token expired", nil,
				))
			}

			if claims.Subject == "" {
				return c.JSON(http.StatusUnauthorized, jsonres.Error(
					"UNAUTHORIZED", "Token missing subject", nil,
				))
			}

			c.Set("principal", domain.Principal{
				ExternalID: claims.Subject,
				FirstName:  claims.FirstName,
				LastName:   claims.LastName,
				Email:      claims.Email,
				ImageURL:   claims.ImageURL,
			})

			return next(c)
		}
	}
}

// AdminOnly resolves the principal to the internal user and requires the
// ADMIN role.
func AdminOnly(resolver IdentityResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := c.Get("principal").(domain.Principal)
			if !ok {
				return c.JSON(http.StatusUnauthorized, jsonres.Error(
					"UNAUTHORIZED", "User not authenticated", nil,
				))
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
			defer cancel()

			user, _, err := resolver.Reconcile(ctx, principal)
			if err != nil {
				logger.Error("Failed to resolve identity for admin check", err)
				return c.JSON(http.StatusUnauthorized, jsonres.Error(
					"UNAUTHORIZED", "Could not establish identity", nil,
				))
			}

			if user.Role != domain.RoleAdmin {
				return c.JSON(http.StatusForbidden, jsonres.Error(
					"FORBIDDEN", "Admin access required", nil,
				))
			}

			return next(c)
		}
	}
}
