package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Het-thummar/hospital-management/pkg/apperr"
	"github.com/Het-thummar/hospital-management/pkg/notice"
)

// ErrorHandler renders errors as the JSON envelope. Authorization failures
// redirect to "/" with an error notice instead of a 403; unauthenticated
// requests redirect to the login page carried by the error.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, resp := render(err)
		if status >= http.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("request_id", requestIDOf(c)).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if resp.RedirectTo != "" {
			c.Response().Header().Set(echo.HeaderLocation, resp.RedirectTo)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, resp)
		}
		if werr != nil {
			logger.Error().Err(werr).Str("request_id", requestIDOf(c)).Msg("write error response")
		}
	}
}

func render(err error) (int, *notice.Response) {
	if he, ok := err.(*echo.HTTPError); ok {
		msg := http.StatusText(he.Code)
		if he.Code < http.StatusInternalServerError {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, &notice.Response{Notice: notice.Error(msg)}
	}

	ae, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError, &notice.Response{Notice: notice.Error("something went wrong, please try again")}
	}

	switch ae.Kind {
	case apperr.KindValidation:
		msg := ae.Message
		if msg == "" {
			msg = "please correct the errors below"
		}
		return http.StatusBadRequest, &notice.Response{Notice: notice.Error(msg), Errors: ae.Fields}
	case apperr.KindAuthorization:
		to := ae.Redirect
		if to == "" {
			to = "/"
		}
		return http.StatusSeeOther, notice.Redirect(to, notice.Error(ae.Message))
	case apperr.KindUnauthenticated:
		to := ae.Redirect
		if to == "" {
			to = "/"
		}
		return http.StatusSeeOther, notice.Redirect(to, notice.Warning(ae.Message))
	case apperr.KindNotFound:
		return http.StatusNotFound, &notice.Response{Notice: notice.Error(ae.Message)}
	default:
		return http.StatusInternalServerError, &notice.Response{Notice: notice.Error("something went wrong, please try again")}
	}
}
