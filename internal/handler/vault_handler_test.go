package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/vault"
)

type mockVaultService struct {
	statusFunc     func(ctx context.Context) (*vault.Status, error)
	unlockFunc     func(ctx context.Context, masterPassword string) error
	initializeFunc func(ctx context.Context, masterPassword string) error
}

func (m *mockVaultService) Status(ctx context.Context) (*vault.Status, error) {
	return m.statusFunc(ctx)
}

func (m *mockVaultService) Unlock(ctx context.Context, masterPassword string) error {
	return m.unlockFunc(ctx, masterPassword)
}

func (m *mockVaultService) Initialize(ctx context.Context, masterPassword string) error {
	return m.initializeFunc(ctx, masterPassword)
}

// TestGetVaultStatus はボールト状態の取得を検証する。
func TestGetVaultStatus(t *testing.T) {
	svc := &mockVaultService{
		statusFunc: func(ctx context.Context) (*vault.Status, error) {
			return &vault.Status{IsConfigured: true, IsUnlocked: true}, nil
		},
	}
	h := NewVaultHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/agent/vault", nil)
	w := httptest.NewRecorder()
	h.GetStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}

	var st vault.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if !st.IsConfigured || !st.IsUnlocked {
		t.Errorf("ボールト状態 = %+v", st)
	}
}

// TestVaultStatus_Forbidden_Returns403 は権限不足時に403が返ることを検証する。
// 403はセッション破棄のトリガーにならない。
func TestVaultStatus_Forbidden_Returns403(t *testing.T) {
	svc := &mockVaultService{
		statusFunc: func(ctx context.Context) (*vault.Status, error) {
			return nil, &model.ForbiddenError{Detail: "admin only"}
		},
	}
	h := NewVaultHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/agent/vault", nil)
	w := httptest.NewRecorder()
	h.GetStatus(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.Code != model.ErrCodeForbidden {
		t.Errorf("Code = %q, want %q", resp.Code, model.ErrCodeForbidden)
	}
}

// TestVaultUnlock_Returns204 は解錠成功時に204が返ることを検証する。
func TestVaultUnlock_Returns204(t *testing.T) {
	var gotPassword string
	svc := &mockVaultService{
		unlockFunc: func(ctx context.Context, masterPassword string) error {
			gotPassword = masterPassword
			return nil
		},
	}
	h := NewVaultHandler(svc)

	w := postJSON(t, h.Unlock, "/agent/vault/unlock", vaultPasswordRequest{MasterPassword: "master-secret"})

	if w.Code != http.StatusNoContent {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotPassword != "master-secret" {
		t.Errorf("マスターパスワード = %q, want %q", gotPassword, "master-secret")
	}
}

// TestVaultUnlock_EmptyPassword_Returns400 は空パスワードで400が返ることを検証する。
func TestVaultUnlock_EmptyPassword_Returns400(t *testing.T) {
	svc := &mockVaultService{}
	h := NewVaultHandler(svc)

	w := postJSON(t, h.Unlock, "/agent/vault/unlock", vaultPasswordRequest{})

	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// TestVaultInitialize_Returns204 は初期化成功時に204が返ることを検証する。
func TestVaultInitialize_Returns204(t *testing.T) {
	svc := &mockVaultService{
		initializeFunc: func(ctx context.Context, masterPassword string) error {
			return nil
		},
	}
	h := NewVaultHandler(svc)

	w := postJSON(t, h.Initialize, "/agent/vault/initialize", vaultPasswordRequest{MasterPassword: "master-secret"})

	if w.Code != http.StatusNoContent {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
	}
}
