package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/telegram"
)

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeConfiguration, http.StatusInternalServerError},
		{model.ErrCodeInternal, http.StatusInternalServerError},
		{model.ErrCodeInvalidRequest, http.StatusBadRequest},
		{model.ErrCodeInvalidTelegramData, http.StatusBadRequest},
		{model.ErrCodeInvalidBookingPeriod, http.StatusBadRequest},
		{model.ErrCodeValidation, http.StatusUnprocessableEntity},
		{model.ErrCodeInvalidSignature, http.StatusUnauthorized},
		{model.ErrCodeAuthExpired, http.StatusUnauthorized},
		{model.ErrCodeCodeExpired, http.StatusUnauthorized},
		{model.ErrCodeUnauthorized, http.StatusUnauthorized},
		{model.ErrCodeForbidden, http.StatusForbidden},
		{model.ErrCodeCSRFInvalid, http.StatusForbidden},
		{model.ErrCodeTelegramAlreadyLinked, http.StatusConflict},
		{model.ErrCodeAlreadyVerified, http.StatusConflict},
		{model.ErrCodeDuplicateSerial, http.StatusConflict},
		{model.ErrCodeDuplicateEmail, http.StatusConflict},
		{model.ErrCodeEquipmentInUse, http.StatusConflict},
		{model.ErrCodeEquipmentUnavailable, http.StatusConflict},
		{model.ErrCodeBookingNotEditable, http.StatusConflict},
		{model.ErrCodeUserNotFound, http.StatusNotFound},
		{model.ErrCodeEquipmentNotFound, http.StatusNotFound},
		{model.ErrCodeBookingNotFound, http.StatusNotFound},
		{model.ErrCodeTelegramNotLinked, http.StatusNotFound},
		{model.ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code}); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleServiceError_WrappedAPIError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/bookings/x", nil)

	handleServiceError(w, req, fmt.Errorf("lookup: %w", model.NewBookingNotFoundError("x")))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	body := decodeError(t, w)
	if body.Code != model.ErrCodeBookingNotFound || body.Status != http.StatusNotFound || body.Category != "booking" {
		t.Errorf("unexpected error body: %+v", body)
	}
}

func TestHandleServiceError_UnknownErrorHidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)

	handleServiceError(w, req, errors.New("pq: connection refused to 10.0.0.5"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("internal error details leaked: %s", w.Body.String())
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
}

func TestWriteData_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeData(w, http.StatusCreated, map[string]string{"status": "ok"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got map[string]string
	decodeData(t, w, &got)
	if got["status"] != "ok" {
		t.Errorf("data = %v", got)
	}
}

func TestDecodeJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", `{"name":`},
		{"wrong type", `{"code": 123}`},
		{"too large", `{"code":"` + strings.Repeat("a", maxRequestBodySize) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := jsonRequest(http.MethodPost, "/", tt.body)
			var dst confirmCodeRequest
			apiErr := decodeJSON(w, req, &dst)
			if apiErr == nil || apiErr.Code != model.ErrCodeInvalidRequest {
				t.Errorf("decodeJSON() = %v, want INVALID_REQUEST", apiErr)
			}
		})
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&offset=abc", nil)

	if v, apiErr := queryInt(req, "limit"); apiErr != nil || v != 25 {
		t.Errorf("limit = %d, %v", v, apiErr)
	}
	if _, apiErr := queryInt(req, "offset"); apiErr == nil {
		t.Error("expected error for non-integer offset")
	}
	if v, apiErr := queryInt(req, "missing"); apiErr != nil || v != 0 {
		t.Errorf("missing = %d, %v", v, apiErr)
	}
}

func TestRequestValidator_UsesJSONFieldNames(t *testing.T) {
	v := newRequestValidator()

	apiErr := v.Struct(&createBookingRequest{EquipmentID: "not-a-uuid"})
	if apiErr == nil || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("Struct() = %v, want VALIDATION_ERROR", apiErr)
	}
	for _, field := range []string{"equipment_id", "start_date", "end_date"} {
		if _, ok := apiErr.Fields[field]; !ok {
			t.Errorf("fields missing %q: %v", field, apiErr.Fields)
		}
	}
	if !strings.Contains(apiErr.Fields["start_date"], "required") {
		t.Errorf("start_date message = %q, want translated required message", apiErr.Fields["start_date"])
	}
}

func TestRequestValidator_Assertion(t *testing.T) {
	v := newRequestValidator()

	valid := &telegram.Assertion{ID: 42, FirstName: "Ann", AuthDate: 1700000000, Hash: strings.Repeat("ab", 32)}
	if apiErr := v.Assertion(valid); apiErr != nil {
		t.Errorf("valid assertion rejected: %v", apiErr)
	}

	tests := []struct {
		name  string
		a     telegram.Assertion
		field string
	}{
		{"missing id", telegram.Assertion{FirstName: "Ann", AuthDate: 1, Hash: strings.Repeat("ab", 32)}, "id"},
		{"missing first name", telegram.Assertion{ID: 1, AuthDate: 1, Hash: strings.Repeat("ab", 32)}, "first_name"},
		{"short hash", telegram.Assertion{ID: 1, FirstName: "Ann", AuthDate: 1, Hash: "abcd"}, "hash"},
		{"non-hex hash", telegram.Assertion{ID: 1, FirstName: "Ann", AuthDate: 1, Hash: strings.Repeat("zz", 32)}, "hash"},
		{"bad photo url", telegram.Assertion{ID: 1, FirstName: "Ann", AuthDate: 1, Hash: strings.Repeat("ab", 32), PhotoURL: "not a url"}, "photo_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := v.Assertion(&tt.a)
			if apiErr == nil || apiErr.Code != model.ErrCodeInvalidTelegramData {
				t.Fatalf("Assertion() = %v, want INVALID_TELEGRAM_DATA", apiErr)
			}
			if _, ok := apiErr.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %q", apiErr.Fields, tt.field)
			}
		})
	}
}
