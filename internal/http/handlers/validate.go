package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var fieldMessages = map[string]string{
	"required": "%s is required",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"oneof":    "%s must be one of [%s]",
	"url":      "%s must be a valid url",
	"http_url": "%s must be an http(s) url",
}

// fieldErrors turns validator errors into json-field keyed messages.
func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out
	}
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Tag()]
		switch {
		case !ok:
			out[fe.Field()] = fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
		case strings.Count(msg, "%s") == 2:
			out[fe.Field()] = fmt.Sprintf(msg, fe.Field(), fe.Param())
		default:
			out[fe.Field()] = fmt.Sprintf(msg, fe.Field())
		}
	}
	return out
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		a.json(w, http.StatusBadRequest, map[string]any{
			"error":  map[string]string{"code": "validation_failed", "message": "invalid payload"},
			"fields": fieldErrors(err),
		})
		return false
	}
	return true
}
