package v1

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// HeaderAPIKey carries the chat API key.
const HeaderAPIKey = "X-API-Key"

// apiKeyAuth guards the chat endpoint. Without a configured key every caller
// is accepted, which Profile.Validate allows in development only.
func (s *APIV1Service) apiKeyAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.Profile.APIKey == "" {
			return next(c)
		}
		if !matchSecret(s.Profile.APIKey, c.Request().Header.Get(HeaderAPIKey)) {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Code: "UNAUTHORIZED"})
		}
		return next(c)
	}
}

// cronAuth guards the sync endpoints with "Authorization: Bearer <secret>".
// Without a configured secret they are open in development and closed in production.
func (s *APIV1Service) cronAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.Profile.CronSecret == "" {
			if s.Profile.IsDev() {
				return next(c)
			}
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Code: "UNAUTHORIZED"})
		}
		token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || !matchSecret(s.Profile.CronSecret, token) {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Code: "UNAUTHORIZED"})
		}
		return next(c)
	}
}

// matchSecret compares a presented secret with the configured one, which may
// be a bcrypt hash.
func matchSecret(configured, presented string) bool {
	if presented == "" {
		return false
	}
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
