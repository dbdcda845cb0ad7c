package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"agenda-tracker/domain"
)

const (
	identityKey     = "agenda.identity"
	viewerKey       = "agenda.viewer"
	usersKey        = "agenda.users"
	authDurationKey = "agenda.auth_duration"

	devUserIDHeader = "X-Line-Uid"
	devNameHeader   = "X-Line-Name"
)

// identify resolves the caller from its bearer token. With devIdentity the
// LINE user id and name may also be passed as plain headers.
func identify(auth Authenticator, devIdentity, allowQuery bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			if devIdentity && req.Header.Get(devUserIDHeader) != "" {
				c.Set(identityKey, Identity{
					UserID:      req.Header.Get(devUserIDHeader),
					DisplayName: req.Header.Get(devNameHeader),
				})
				c.Set(authDurationKey, time.Since(start))
				return next(c)
			}

			token, err := tokenFromRequest(req, allowQuery)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}
			id, err := auth.Identify(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}
			c.Set(identityKey, id)
			c.Set(authDurationKey, time.Since(start))
			return next(c)
		}
	}
}

// requireAccess admits only users holding a role. Everyone else gets the
// pending approval screen before any dashboard data is read.
func requireAccess(store Storage, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			id := identityFrom(c)
			users, err := store.FetchUsers(c.Request().Context())
			if err != nil {
				logger.WithFields(log.Fields{"error_stage": "users", "user_id": id.UserID}).WithError(err).Error("fetch users failed")
				return c.JSON(http.StatusBadGateway, errorResponse{Error: "user directory unavailable"})
			}
			user, state := domain.Access(users, id.UserID)
			if state != domain.AccessGranted {
				return c.JSON(http.StatusForbidden, pendingResponse{State: state, DisplayName: displayNameOf(user, id)})
			}
			c.Set(viewerKey, user)
			c.Set(usersKey, users)
			if d, ok := c.Get(authDurationKey).(time.Duration); ok {
				c.Set(authDurationKey, d+time.Since(start))
			}
			return next(c)
		}
	}
}

func identityFrom(c echo.Context) Identity {
	id, _ := c.Get(identityKey).(Identity)
	return id
}

func viewerFrom(c echo.Context) domain.User {
	u, _ := c.Get(viewerKey).(domain.User)
	return u
}

func usersFrom(c echo.Context) []domain.User {
	users, _ := c.Get(usersKey).([]domain.User)
	return users
}

func authDurationFrom(c echo.Context) time.Duration {
	d, _ := c.Get(authDurationKey).(time.Duration)
	return d
}

func displayNameOf(u domain.User, id Identity) string {
	if name := u.DisplayName(); name != "" {
		return name
	}
	return id.DisplayName
}
