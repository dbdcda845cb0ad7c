package api

import (
	"errors"
	"net/http"
	"strings"
	"unsafe"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// tokenFromRequest returns the bearer token of req. EventSource clients cannot
// set headers, so allowQuery also accepts ?token=.
func tokenFromRequest(req *http.Request, allowQuery bool) ([]byte, error) {
	if h := req.Header.Get(echo.HeaderAuthorization); h != "" || !allowQuery {
		return bearerTokenFromString(h)
	}
	raw := req.URL.Query().Get("token")
	if raw == "" {
		return nil, errMissingAuthorization
	}
	return jwtBytes(raw)
}

func bearerTokenFromString(raw string) ([]byte, error) {
	trimmed := strings.Trim(raw, " ")
	if trimmed == "" {
		return nil, errMissingAuthorization
	}
	if len(trimmed) <= len(bearerPrefix) || !strings.HasPrefix(trimmed, bearerPrefix) {
		return nil, errBadAuthorization
	}
	return jwtBytes(trimmed[len(bearerPrefix):])
}

// jwtBytes checks the compact serialization shape without copying.
func jwtBytes(token string) ([]byte, error) {
	if strings.Count(token, ".") != 2 {
		return nil, errBadAuthorization
	}
	return readOnlyBytes(token), nil
}

func readOnlyBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func readOnlyString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
