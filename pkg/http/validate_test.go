package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type signupForm struct {
	Username string `json:"username" validate:"required,alphanum,min=4,max=8"`
	Email    string `json:"email" validate:"required,email"`
	Limit    int    `json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

func bind(t *testing.T, body string, req interface{}) interface{} {
	t.Helper()
	e := echo.New()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return ReadAndValidateRequest(e.NewContext(r, httptest.NewRecorder()), req)
}

func TestReadAndValidateRequest(t *testing.T) {
	var ok signupForm
	if errs := bind(t, `{"username":"manny","email":"manny@me.com"}`, &ok); errs != nil {
		t.Fatalf("unexpected errors %+v", errs)
	}
	if ok.Limit != 50 {
		t.Fatalf("default not applied: %d", ok.Limit)
	}

	var bad signupForm
	errs, _ := bind(t, `{"username":"ma","email":"nope","limit":5000}`, &bad).([]ValidationError)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %+v", errs)
	}

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	if u := byField["username"]; u.Code != "ERR_MIN" || u.Message != "username must be at least 4 characters" || u.Params["min"] != "4" {
		t.Fatalf("username %+v", u)
	}
	if m := byField["email"]; m.Message != "email must be a valid email" || m.Params != nil {
		t.Fatalf("email %+v", m)
	}
	if l := byField["limit"]; l.Code != "ERR_LTE" || l.Message != "limit must be at most 1000" {
		t.Fatalf("limit %+v", l)
	}
}

func TestReadAndValidateRequestBadJSON(t *testing.T) {
	var f signupForm
	errs, _ := bind(t, `{"username":`, &f).([]ValidationError)
	if len(errs) != 1 || errs[0].Code != "ERR_UNKNOWN" {
		t.Fatalf("unexpected %+v", errs)
	}
}
