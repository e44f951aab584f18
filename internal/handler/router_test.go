package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/session"
	"github.com/hitoshi/healthsync/internal/syncjob"
	"github.com/hitoshi/healthsync/internal/vault"
)

type mockAccountService struct {
	linkFunc func(ctx context.Context, providerName, username, password string) (*model.User, error)
}

func (m *mockAccountService) Link(ctx context.Context, providerName, username, password string) (*model.User, error) {
	return m.linkFunc(ctx, providerName, username, password)
}

func newTestRouter(t *testing.T) (http.Handler, *mockSessionService, *mockSyncService) {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	sessionSvc := &mockSessionService{state: session.StateAnonymous}
	syncSvc := &mockSyncService{
		startFunc: func(ctx context.Context, provider string) (syncjob.Snapshot, error) {
			return syncjob.Snapshot{Provider: provider, State: syncjob.StatePolling}, nil
		},
	}
	accountSvc := &mockAccountService{
		linkFunc: func(ctx context.Context, providerName, username, password string) (*model.User, error) {
			return &model.User{ID: "user-1"}, nil
		},
	}
	vaultSvc := &mockVaultService{
		statusFunc: func(ctx context.Context) (*vault.Status, error) {
			return &vault.Status{IsConfigured: true, IsUnlocked: false}, nil
		},
	}

	router := NewRouter(&RouterDeps{
		Logger:            logger,
		CORSAllowedOrigin: "http://localhost:3000",
		SessionService:    sessionSvc,
		AccountService:    accountSvc,
		SyncService:       syncSvc,
		VaultService:      vaultSvc,
	})
	return router, sessionSvc, syncSvc
}

// TestRouter_Health はヘルスチェックエンドポイントを検証する。
func TestRouter_Health(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

// TestRouter_SetsRequestIDHeader は全ルートでX-Request-IDが付与されることを検証する。
func TestRouter_SetsRequestIDHeader(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/agent/session", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID ヘッダーが設定されていない")
	}
}

// TestRouter_CORSPreflight はプリフライトリクエストの処理を検証する。
func TestRouter_CORSPreflight(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/agent/login", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

// TestRouter_SyncRoutes は同期ルートの配線を検証する。
func TestRouter_SyncRoutes(t *testing.T) {
	router, _, syncSvc := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/agent/sync/Synevo", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /agent/sync/Synevo = %d, want %d", w.Code, http.StatusAccepted)
	}

	req = httptest.NewRequest(http.MethodDelete, "/agent/sync/Synevo", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE /agent/sync/Synevo = %d, want %d", w.Code, http.StatusNoContent)
	}
	if len(syncSvc.cancelled) != 1 {
		t.Errorf("キャンセル回数 = %d, want 1", len(syncSvc.cancelled))
	}
}

// TestRouter_SessionExpired_Returns401 はセッション失効エラーが401に変換されることを検証する。
func TestRouter_SessionExpired_Returns401(t *testing.T) {
	router, sessionSvc, _ := newTestRouter(t)
	sessionSvc.loginFunc = func(ctx context.Context, email, password string) (*model.User, error) {
		return nil, &model.AuthError{Reason: model.AuthReasonSessionExpired}
	}

	body, _ := json.Marshal(loginRequest{Email: "taro@example.com", Password: "secret"})
	req := httptest.NewRequest(http.MethodPost, "/agent/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.Code != model.ErrCodeSessionExpired {
		t.Errorf("Code = %q, want %q", resp.Code, model.ErrCodeSessionExpired)
	}
}

// TestHandleServiceError_NotAuthenticated は未認証センチネルが401に変換されることを検証する。
func TestHandleServiceError_NotAuthenticated(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, session.ErrNotAuthenticated)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.Code != model.ErrCodeNotAuthenticated {
		t.Errorf("Code = %q, want %q", resp.Code, model.ErrCodeNotAuthenticated)
	}
}

// TestHandleServiceError_Transport_Returns502 は転送層エラーが502に変換されることを検証する。
func TestHandleServiceError_Transport_Returns502(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, &model.TransportError{Op: "GET /users/me", Err: errors.New("connection refused")})

	if w.Code != http.StatusBadGateway {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

// TestHandleServiceError_Unknown_Returns500 は分類外エラーが500に変換されることを検証する。
func TestHandleServiceError_Unknown_Returns500(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, errors.New("something broke"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
