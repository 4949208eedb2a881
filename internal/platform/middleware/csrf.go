package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/labstack/echo/v4"

	"github.com/Het-thummar/hospital-management/pkg/notice"
)

const (
	CSRFHeader = "X-CSRF-Token"
	CSRFField  = "csrfmiddlewaretoken"
)

// CSRF protects unsafe methods with gorilla/csrf. Every response carries a
// fresh token in X-CSRF-Token; forms echo it back in the header or in the
// csrfmiddlewaretoken field. skipper bypasses the check entirely.
func CSRF(key []byte, secure bool, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	protect := echo.WrapMiddleware(csrf.Protect(key,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader(CSRFHeader),
		csrf.FieldName(CSRFField),
		csrf.ErrorHandler(http.HandlerFunc(csrfFailure)),
	))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withToken := protect(func(c echo.Context) error {
			c.Response().Header().Set(CSRFHeader, csrf.Token(c.Request()))
			return next(c)
		})
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			return withToken(c)
		}
	}
}

func csrfFailure(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(&notice.Response{
		Notice: notice.Error("your form expired, please reload the page and try again"),
	})
}
