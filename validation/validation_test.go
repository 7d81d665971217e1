package validation

import (
	"strings"
	"testing"

	"github.com/kbukum/webquery/errors"
)

type sample struct {
	Authority string `mapstructure:"authority" validate:"omitempty,url"`
	Retries   int    `mapstructure:"max_retries" validate:"gte=0,max=10"`
	Mode      string `mapstructure:"mode" validate:"oneof=none absolute sliding"`
	Addr      string `validate:"required"`
}

func TestValidate_Valid(t *testing.T) {
	s := sample{Authority: "https://api.example.com", Retries: 3, Mode: "none", Addr: "x"}
	if err := Validate(s); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	s := sample{Authority: "not a url", Retries: 11, Mode: "forever"}
	err := Validate(s)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.IsCode(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION code, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"authority", "max_retries", "mode", "addr: is required"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
	appErr, _ := errors.AsAppError(err)
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 4 {
		t.Errorf("expected 4 field errors, got %v", appErr.Details["fields"])
	}
}

func TestToSnakeCase(t *testing.T) {
	if got := toSnakeCase("MaxRetries"); got != "max_retries" {
		t.Errorf("got %q", got)
	}
}
