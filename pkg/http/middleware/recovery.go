package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"Socially/pkg/logger"

	"github.com/labstack/echo/v4"
)

const stackSize = 4 << 10

// Recover turns a handler panic into a 500 rendered by the server's error
// handler. The first stackSize bytes of the stack are logged.
func Recover(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]
				l.Error("panic in handler",
					logger.String("method", c.Request().Method),
					logger.String("route", c.Path()),
					logger.Error(perr),
					logger.String("stack", string(stack)))
				err = echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error").SetInternal(perr)
			}()
			return next(c)
		}
	}
}
