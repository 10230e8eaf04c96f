package fakebackend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/revsearch/internal/logging"
)

// apiError is a failure with a stable machine-readable code.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func newAPIError(status int, code, message string) *apiError {
	return &apiError{Status: status, Code: code, Message: message}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type metaBody struct {
	RequestID string `json:"request_id,omitempty"`
}

type envelope struct {
	Error errorBody `json:"error"`
	Meta  metaBody  `json:"meta"`
}

// errorHandler renders every error as an envelope. Unknown errors become
// 500 internal and are logged.
func errorHandler(log logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			apiErr  *apiError
			httpErr *echo.HTTPError
			status  int
			body    errorBody
		)
		switch {
		case errors.As(err, &apiErr):
			status, body = apiErr.Status, errorBody{Code: apiErr.Code, Message: apiErr.Message}
		case errors.As(err, &httpErr):
			status = httpErr.Code
			body = errorBody{
				Code:    strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
				Message: fmt.Sprint(httpErr.Message),
			}
		default:
			log.Error(c.Request().Context(), "unhandled error",
				"error", err,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
			)
			status, body = http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal server error"}
		}

		env := envelope{Error: body, Meta: metaBody{RequestID: c.Response().Header().Get(echo.HeaderXRequestID)}}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, env)
		}
		if werr != nil {
			log.Warn(c.Request().Context(), "write error response failed", "error", werr)
		}
	}
}
