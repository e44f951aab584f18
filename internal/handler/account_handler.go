package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/healthsync/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// Link はプロバイダアカウントを連携し、更新後のユーザースナップショットを返す。
	Link(ctx context.Context, providerName, username, password string) (*model.User, error)
}

// AccountHandler はプロバイダアカウント連携のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{
		service: service,
	}
}

// linkRequest はアカウント連携リクエストのボディ。
// プロバイダの資格情報は送信後にクライアントで保持しない。
type linkRequest struct {
	ProviderName string `json:"provider_name"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

// Link はプロバイダアカウントを連携する。
// POST /agent/link
func (h *AccountHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.ProviderName == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewProviderRequiredError())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "プロバイダのユーザー名とパスワードは必須です。",
			Category: "validation",
			Action:   "入力内容を確認してください。",
		})
		return
	}

	user, err := h.service.Link(r.Context(), req.ProviderName, req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
