package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"testpulse/internal/types"
)

func requestIDFrom(r *http.Request) string {
	return types.GetRequestID(r.Context())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var body APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"validation", types.NewAppError(types.ErrCodeValidationInvalidBody, "empty", nil), http.StatusBadRequest, "validation_invalid_body"},
		{"not found", types.NewAppError(types.ErrCodeNotFoundTemplate, "missing", nil), http.StatusNotFound, "not_found_template"},
		{"wrapped", fmt.Errorf("op: %w", types.NewAppError(types.ErrCodeUpstreamTimeout, "slow", nil)), http.StatusGatewayTimeout, "upstream_timeout"},
		{"generic", fmt.Errorf("dynamodb: secret connection string"), http.StatusInternalServerError, "internal_unexpected_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))
			rec := httptest.NewRecorder()

			Error(rec, req, tt.err)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			body := decodeError(t, rec)
			if body.Error.Code != tt.wantBody {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.wantBody)
			}
			if body.Error.RequestID != "req-1" {
				t.Errorf("request id = %q", body.Error.RequestID)
			}
			if strings.Contains(rec.Body.String(), "secret connection string") {
				t.Error("internal error message leaked")
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"empty", ``, true},
		{"malformed", `{"name":`, true},
		{"unknown field", `{"name":"x","extra":1}`, true},
		{"wrong type", `{"name":5}`, true},
		{"two values", `{"name":"a"} {"name":"b"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				appErr, ok := err.(*types.AppError)
				if !ok || appErr.Code != errCodeValidationInvalidJSON {
					t.Errorf("expected invalid json AppError, got %v", err)
				}
			}
		})
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]any{"ch": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}
