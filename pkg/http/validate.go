package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// rule renders one validator tag. param names the key the tag argument is
// reported under, if any.
type rule struct {
	format string
	param  string
}

var rules = map[string]rule{
	"required": {format: "%s is required"},
	"email":    {format: "%s must be a valid email"},
	"alphanum": {format: "%s must contain only letters and digits"},
	"eqfield":  {format: "%s must match %s", param: "field"},
	"min":      {format: "%s must be at least %s", param: "min"},
	"max":      {format: "%s must be at most %s", param: "max"},
	"gte":      {format: "%s must be at least %s", param: "min"},
	"lte":      {format: "%s must be at most %s", param: "max"},
	"oneof":    {format: "%s must be one of: %s", param: "options"},
}

// ReadAndValidateRequest binds the request into req, applies default tags and
// validates it. A non-nil result is the error body for BadRequestResponse.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return validationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return validationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return validationErrors(err)
	}
	return nil
}

func validationErrors(err error) []ValidationError {
	var fes validator.ValidationErrors
	if errors.As(err, &fes) {
		out := make([]ValidationError, 0, len(fes))
		for _, fe := range fes {
			out = append(out, fieldError(fe))
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: msg}}
}

func fieldError(fe validator.FieldError) ValidationError {
	ve := ValidationError{
		Code:  "ERR_" + strings.ToUpper(fe.Tag()),
		Field: fe.Field(),
	}

	r, ok := rules[fe.Tag()]
	if !ok {
		ve.Message = fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
		return ve
	}

	arg := fe.Param()
	if fe.Tag() == "oneof" {
		arg = strings.ReplaceAll(arg, " ", ", ")
	}
	if r.param == "" {
		ve.Message = fmt.Sprintf(r.format, fe.Field())
		return ve
	}

	ve.Message = fmt.Sprintf(r.format, fe.Field(), arg)
	if fe.Kind() == reflect.String && (r.param == "min" || r.param == "max") {
		ve.Message += " characters"
	}
	var value interface{} = fe.Param()
	if fe.Tag() == "oneof" {
		value = strings.Fields(fe.Param())
	}
	ve.Params = map[string]interface{}{r.param: value}
	return ve
}
