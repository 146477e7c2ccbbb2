package validator

import "testing"

func TestValidateRequired(t *testing.T) {
	type testStruct struct {
		Name string `validate:"required"`
	}
	v := New()
	if err := v.Validate(&testStruct{Name: "ok"}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := v.Validate(&testStruct{}); err == nil {
		t.Error("expected error for empty required field")
	}
}

func TestValidateEmailTag(t *testing.T) {
	type testStruct struct {
		Email string `validate:"required,email"`
	}
	v := New()
	if err := v.Validate(&testStruct{Email: "a@b.com"}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := v.Validate(&testStruct{Email: "not-an-email"}); err == nil {
		t.Error("expected error for invalid email")
	}
}

func TestValidateMinLength(t *testing.T) {
	type testStruct struct {
		Password string `validate:"required,min=8"`
	}
	v := New()
	if err := v.Validate(&testStruct{Password: "password123"}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := v.Validate(&testStruct{Password: "short"}); err == nil {
		t.Error("expected error for too-short password")
	}
}
