package access

import (
	"github.com/labstack/echo/v4"

	"github.com/Het-thummar/hospital-management/internal/domain/identity"
)

// RequireCapability guards a route group with Check. Denied requests get an
// authorization error, which the error handler turns into a redirect home.
func RequireCapability(c Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			if _, err := Require(identity.ActorFromContext(ec.Request().Context()), c); err != nil {
				return err
			}
			return next(ec)
		}
	}
}

// Guard is the route middleware for a capability: anonymous requests are sent
// to the matching login page, everyone else goes through the gate.
func Guard(c Capability) []echo.MiddlewareFunc {
	login := identity.AdminLoginPath
	switch c {
	case CapPatient:
		login = identity.PatientLoginPath
	case CapDoctor:
		login = identity.DoctorLoginPath
	}
	return []echo.MiddlewareFunc{identity.RequireActor(login), RequireCapability(c)}
}
