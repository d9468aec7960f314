package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/flashcard"
	"github.com/trezcool/kalamu/core/lecture"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/reference"
	"github.com/trezcool/kalamu/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyRequests      = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, please slow down")
)

// notFoundErrors are rendered as 404 with their own message.
var notFoundErrors = map[error]bool{
	user.ErrNotFound:          true,
	note.ErrNotFound:          true,
	note.ErrFolderNotFound:    true,
	flashcard.ErrNotFound:     true,
	flashcard.ErrCardNotFound: true,
	progress.ErrNotFound:      true,
}

// badRequestErrors are domain errors caused by the request content.
var badRequestErrors = map[error]bool{
	lecture.ErrUnsupportedType: true,
	lecture.ErrNoContent:       true,
	note.ErrInvalidFormat:      true,
	flashcard.ErrNoCards:       true,
	reference.ErrEmptyNote:     true,
	reference.ErrNoReferences:  true,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if qe, ok := quota.AsExceeded(err); ok {
			cause = qe
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *quota.ExceededError:
			code = http.StatusPaymentRequired
			message = quotaBody{
				ExceededError: origErr,
				Error:         origErr.Error(),
				Message:       origErr.Message(),
				HideUpgrade:   origErr.HideUpgrade(),
			}
		case *core.Unavailable:
			code = http.StatusNotImplemented
			message = origErr.Error()
		default:
			switch {
			case notFoundErrors[cause]:
				code = http.StatusNotFound
				message = cause.Error()
			case badRequestErrors[cause]:
				code = http.StatusBadRequest
				message = cause.Error()
			case cause == lecture.ErrFileTooLarge:
				code = http.StatusRequestEntityTooLarge
				message = cause.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// quotaBody is the 402 payload; the client SDK decodes it back into a *quota.ExceededError.
type quotaBody struct {
	*quota.ExceededError
	Error       string `json:"error"`
	Message     string `json:"message"`
	HideUpgrade bool   `json:"hide_upgrade"`
}
