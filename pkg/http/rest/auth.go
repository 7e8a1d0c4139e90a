package rest

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/commune-app/callengine/pkg/identity"
)

const identityKey = "identity"

// Auth verifies the bearer token on every request and stores the
// caller's identity on the context.
func Auth(verifier *identity.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				return echo.NewHTTPError(http.StatusUnauthorized, identity.ErrInvalidToken)
			}

			id, err := verifier.Verify(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err)
			}

			c.Set(identityKey, *id)
			return next(c)
		}
	}
}

func currentIdentity(c echo.Context) (identity.Identity, bool) {
	id, ok := c.Get(identityKey).(identity.Identity)
	return id, ok
}
