// Package bind decodes and validates JSON request bodies
package bind

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// MaxBody caps a request body read by ParseJSON
const MaxBody int64 = 1 << 20

var (
	once  sync.Once
	valid *validator.Validate
	trans ut.Translator
)

func setup() {
	once.Do(func() {
		loc := en.New()
		trans, _ = ut.New(loc, loc).GetTranslator("en")

		valid = validator.New(validator.WithRequiredStructEnabled())
		valid.RegisterTagNameFunc(jsonName)
		_ = en_translations.RegisterDefaultTranslations(valid, trans)
		_ = valid.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})

		short := map[string]string{
			"min":      "{0} must be at least {1}",
			"max":      "{0} must be at most {1}",
			"nonblank": "{0} must not be blank",
		}
		for tag, text := range short {
			addTranslation(tag, text)
		}
	})
}

func addTranslation(tag, text string) {
	_ = valid.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(tag, fe.Field(), fe.Param())
			return msg
		},
	)
}

// jsonName reports fields by their wire name
func jsonName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if tag == "" || tag == "-" {
		return f.Name
	}
	return tag
}

// ParseJSON decodes one JSON object into T and validates it
// unknown fields, trailing data and empty bodies are JSON errors
func ParseJSON[T any](r *http.Request) (T, error) {
	var zero, dst T
	defer func() {
		if err := r.Body.Close(); err != nil {
			logger.Get().Debug().Err(err).Msg("close request body")
		}
	}()

	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dst); err != nil {
		if errors.Is(err, io.EOF) {
			return zero, perr.JSONErrf("empty body")
		}
		return zero, perr.JSONErrf("invalid JSON: %v", err)
	}
	if dec.More() {
		return zero, perr.JSONErrf("unexpected trailing data")
	}
	if err := Validate(dst); err != nil {
		return zero, err
	}
	return dst, nil
}

// Validate runs struct validation and returns a validation error naming the first bad field
func Validate(v any) error {
	setup()
	err := valid.Struct(v)
	if err == nil {
		return nil
	}
	var inv *validator.InvalidValidationError
	if errors.As(err, &inv) {
		logger.Get().Error().Err(inv).Msg("validator misuse")
		return perr.JSONErrf("validation error")
	}
	field, msg := FieldMessage(err)
	return perr.WithField(perr.Newf(perr.ErrorCodeValidation, "%s", msg), field)
}

// FieldMessage returns the first failing field and its translated message
func FieldMessage(err error) (field, message string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		setup()
		return verrs[0].Field(), verrs[0].Translate(trans)
	}
	if err == nil {
		return "", ""
	}
	return "", err.Error()
}
