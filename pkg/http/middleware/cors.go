package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
)

// CORSConfig holds CORS configuration. Credentials are allowed only when
// origins are listed explicitly.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// CORS returns CORS middleware for the browser client.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	}

	credentials := true
	for _, o := range origins {
		if o == "*" {
			credentials = false
		}
	}

	return emw.CORSWithConfig(emw.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     cfg.AllowHeaders,
		AllowCredentials: credentials,
		MaxAge:           cfg.MaxAge,
	})
}
