package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appErrors "github.com/classpad/classpad/pkg/errors"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	payload := gin.H{"message": "ok"}
	Success(ctx, http.StatusCreated, payload)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !resp.Success {
		t.Fatal("expected success flag to be true")
	}
	if resp.Message != "" || resp.Code != "" {
		t.Fatal("expected no error information")
	}
}

func TestSuccessWithMeta(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	meta := &Meta{Page: 1, PerPage: 10, Total: 20, TotalPages: 2}
	SuccessWithMeta(ctx, http.StatusOK, []string{"a", "b"}, meta)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Meta == nil || resp.Meta.Total != 20 {
		t.Fatal("expected metadata to be serialised")
	}
}

func TestErrorWithAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Error(ctx, appErrors.ErrCrossTenantDenied)

	if rec.Code != appErrors.ErrCrossTenantDenied.StatusCode {
		t.Fatalf("expected status %d got %d", appErrors.ErrCrossTenantDenied.StatusCode, rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Success {
		t.Fatal("expected success to be false")
	}
	if resp.Code != appErrors.ErrCrossTenantDenied.Code {
		t.Fatalf("expected cross-tenant code in response, got %q", resp.Code)
	}
	if resp.Message != appErrors.ErrCrossTenantDenied.Message {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestErrorFlattensShape(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Error(ctx, appErrors.ErrTokenExpired)

	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if _, ok := raw["error"]; ok {
		t.Fatal("expected no nested error object")
	}
	if raw["message"] != "Token expired" {
		t.Fatalf("unexpected message field: %v", raw["message"])
	}
}

func TestErrorWithGenericError(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Error(ctx, errors.New("boom"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d got %d", http.StatusInternalServerError, rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatal("internal error text must not reach the client")
	}
}

func TestNewMetaDerivesTotalPages(t *testing.T) {
	tests := []struct {
		page, perPage int
		total         int64
		wantPages     int
	}{
		{1, 10, 0, 0},
		{1, 10, 5, 1},
		{2, 10, 20, 2},
		{3, 10, 21, 3},
		{1, 0, 50, 0},
	}
	for _, tt := range tests {
		m := NewMeta(tt.page, tt.perPage, tt.total)
		if m.TotalPages != tt.wantPages {
			t.Fatalf("NewMeta(%d, %d, %d).TotalPages = %d, want %d",
				tt.page, tt.perPage, tt.total, m.TotalPages, tt.wantPages)
		}
		if m.Page != tt.page || m.PerPage != tt.perPage || m.Total != int(tt.total) {
			t.Fatalf("NewMeta(%d, %d, %d) = %+v", tt.page, tt.perPage, tt.total, m)
		}
	}
}
