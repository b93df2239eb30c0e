package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/pitlog/internal/model"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestWriteErrorResponse_ValidationFields(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError([]model.FieldError{
		{Field: "star_rating", Message: "0.5刻みで指定してください"},
		{Field: "review.body", Message: "本文を入力してください"},
	}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	body := decodeErrorBody(t, w)
	if body.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidation)
	}
	if len(body.Fields) != 2 || body.Fields[1].Field != "review.body" {
		t.Errorf("fields = %+v", body.Fields)
	}
	if body.SessionIDs != nil {
		t.Errorf("session_ids should be omitted, got %v", body.SessionIDs)
	}
}

func TestWriteErrorResponse_SessionIDs(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusConflict, model.NewSessionsAlreadyLoggedError([]string{"race"}))

	body := decodeErrorBody(t, w)
	if body.Category != model.CategoryConflict {
		t.Errorf("category = %q, want %q", body.Category, model.CategoryConflict)
	}
	if len(body.SessionIDs) != 1 || body.SessionIDs[0] != "race" {
		t.Errorf("session_ids = %v, want [race]", body.SessionIDs)
	}
}

func TestWriteErrorResponse_OmitsEmptyDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusNotFound, model.NewLogNotFoundError("x"))

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	for _, key := range []string{"fields", "session_ids"} {
		if _, ok := raw[key]; ok {
			t.Errorf("unexpected key %q", key)
		}
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeErrorBody(t, w)
	if body.Code != "INTERNAL_ERROR" || body.Category != model.CategorySystem {
		t.Errorf("body = %+v", body)
	}
}
