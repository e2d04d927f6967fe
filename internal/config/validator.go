package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var telegramBotTokenRegex = regexp.MustCompile(`^\d{3,20}:[a-zA-Z0-9_-]{30,50}$`)

func newValidator() *validator.Validate {
	v := validator.New()

	// Report json names (e.g. snapshot_url) instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("telegram_bot_token", func(fl validator.FieldLevel) bool {
		return telegramBotTokenRegex.MatchString(strings.TrimSpace(fl.Field().String()))
	}); err != nil {
		panic(fmt.Sprintf("register telegram_bot_token: %v", err))
	}
	if err := v.RegisterValidation("go_duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(strings.TrimSpace(fl.Field().String()))
		return err == nil && d >= 0
	}); err != nil {
		panic(fmt.Sprintf("register go_duration: %v", err))
	}
	return v
}

var validate = newValidator()

// Validate checks struct tags and returns every violation joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var out []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			out = append(out, fmt.Errorf("%s: %s", trimRoot(fe.Namespace()), describe(fe)))
		}
	}
	if u := strings.TrimSpace(cfg.Camera.SnapshotURL); u != "" {
		if err := validate.Var(u, "url"); err != nil {
			out = append(out, fmt.Errorf("camera.snapshot_url: invalid url %q", u))
		}
	}
	return errors.Join(out...)
}

// ValidateHook adapts Validate to ConfigManager.SetValidator.
func ValidateHook(_ context.Context, cfg *Config) error { return Validate(cfg) }

func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + strings.ToLower(strings.Fields(fe.Param())[0]) + " is set"
	case "telegram_bot_token":
		return "is not a valid bot token"
	case "go_duration":
		return fmt.Sprintf("invalid duration %q", fe.Value())
	case "url":
		return fmt.Sprintf("invalid url %q", fe.Value())
	case "timezone":
		return fmt.Sprintf("unknown timezone %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}
