package core

import (
	"errors"
	"testing"

	"testpulse/internal/types"
)

type sampleRequest struct {
	EventType string `json:"eventType" validate:"required,oneof=test_failure test_completion"`
	Body      string `json:"body" validate:"required"`
}

func TestValidateStruct_Valid(t *testing.T) {
	v := NewValidator()
	if err := v.ValidateStruct(sampleRequest{EventType: "test_failure", Body: "x"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateStruct_ReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()
	err := v.ValidateStruct(sampleRequest{EventType: "deploy"})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeValidationMissingField {
		t.Errorf("code = %q", appErr.Code)
	}
	fields, _ := appErr.Details["fields"].(map[string]any)
	if fields["eventType"] != "oneof=test_failure test_completion" {
		t.Errorf("eventType rule = %v", fields["eventType"])
	}
	if fields["body"] != "required" {
		t.Errorf("body rule = %v", fields["body"])
	}
}
