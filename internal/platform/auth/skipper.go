package auth

import (
	"github.com/labstack/echo/v4"
)

// opsPaths are infrastructure endpoints that skip request logging, metrics
// and CSRF checks.
var opsPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// OpsSkipper returns true for infrastructure endpoints.
func OpsSkipper(c echo.Context) bool {
	return opsPaths[c.Path()]
}

// IsOpsPath reports whether path is an infrastructure endpoint.
func IsOpsPath(path string) bool {
	return opsPaths[path]
}
