package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/pipnation/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError())

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if body.Error != "Profile not found" {
		t.Errorf("error = %q, want %q", body.Error, "Profile not found")
	}
	if body.Code != model.ErrCodeProfileNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeProfileNotFound)
	}
	if body.Message != body.Error {
		t.Errorf("message = %q, errorと同じであるべき", body.Message)
	}
	if body.Category == "" || body.Action == "" {
		t.Errorf("category/action should be set: %+v", body)
	}
}

// TestWriteErrorResponse_AllFieldsPresent はJSONに全フィールドが含まれることを検証する。
func TestWriteErrorResponse_AllFieldsPresent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingUserIDError())

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	for _, field := range []string{"error", "code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("field %q is missing", field)
		}
	}
	if raw["error"] != "Missing userId" {
		t.Errorf("error = %v, want %q", raw["error"], "Missing userId")
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが一般的なメッセージで返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}
