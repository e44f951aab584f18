package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

// TestRequestIDMiddleware_GeneratesID はID未指定時にUUIDが生成されることを検証する。
func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var ctxID string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/agent/session", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if ctxID == "" {
		t.Fatal("コンテキストにリクエストIDが設定されていない")
	}
	if _, err := uuid.Parse(ctxID); err != nil {
		t.Errorf("リクエストID = %q はUUIDではない: %v", ctxID, err)
	}
	if got := w.Header().Get("X-Request-ID"); got != ctxID {
		t.Errorf("X-Request-ID ヘッダー = %q, want %q", got, ctxID)
	}
}

// TestRequestIDMiddleware_PropagatesClientID はクライアント指定のIDが引き継がれることを検証する。
func TestRequestIDMiddleware_PropagatesClientID(t *testing.T) {
	var ctxID string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/agent/session", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if ctxID != "client-supplied-id" {
		t.Errorf("リクエストID = %q, want %q", ctxID, "client-supplied-id")
	}
}
