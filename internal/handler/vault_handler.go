package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/vault"
)

// VaultServiceInterface はボールトハンドラーが必要とするサービスインターフェース。
type VaultServiceInterface interface {
	// Status はボールトの構成・解錠状態を取得する。
	Status(ctx context.Context) (*vault.Status, error)
	// Unlock はマスターパスワードでボールトを解錠する。
	Unlock(ctx context.Context, masterPassword string) error
	// Initialize はマスターパスワードでボールトを初期化する。
	Initialize(ctx context.Context, masterPassword string) error
}

// VaultHandler はボールト管理のHTTPハンドラー。
type VaultHandler struct {
	service VaultServiceInterface
}

// NewVaultHandler はVaultHandlerを生成する。
func NewVaultHandler(service VaultServiceInterface) *VaultHandler {
	return &VaultHandler{
		service: service,
	}
}

// vaultPasswordRequest はマスターパスワードを含むリクエストボディ。
type vaultPasswordRequest struct {
	MasterPassword string `json:"master_password"`
}

// GetStatus はボールトの状態を返す。
// GET /agent/vault
func (h *VaultHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Status(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Unlock はボールトを解錠する。
// POST /agent/vault/unlock
func (h *VaultHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	pw, ok := h.decodePassword(w, r)
	if !ok {
		return
	}
	if err := h.service.Unlock(r.Context(), pw); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Initialize はボールトを初期化する。
// POST /agent/vault/initialize
func (h *VaultHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	pw, ok := h.decodePassword(w, r)
	if !ok {
		return
	}
	if err := h.service.Initialize(r.Context(), pw); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodePassword はマスターパスワードのリクエストボディを解析する。
// 解析失敗または空パスワードの場合はエラーレスポンスを書き込みfalseを返す。
func (h *VaultHandler) decodePassword(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req vaultPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return "", false
	}
	if req.MasterPassword == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "マスターパスワードは必須です。",
			Category: "validation",
			Action:   "マスターパスワードを入力してください。",
		})
		return "", false
	}
	return req.MasterPassword, true
}
