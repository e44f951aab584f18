package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/session"
)

// apiErrorResponse はAPIエラーレスポンスのJSONフォーマット。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層のエラーをHTTPステータスと統一フォーマットに変換する。
//
// 分類の対応:
//   - セッション失効(401分類)と資格情報誤り → 401
//   - 未認証状態での操作 → 401
//   - 権限不足(403分類) → 403（セッションは有効のまま）
//   - ボールト施錠(503分類) → 503
//   - 転送層エラー → 502
//   - 同期ジョブ失敗 → 502
//   - 分類対象外のHTTPステータス → そのまま伝搬
func handleServiceError(w http.ResponseWriter, err error) {
	var authErr *model.AuthError
	if errors.As(err, &authErr) {
		if authErr.Reason == model.AuthReasonInvalidCredentials {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
			return
		}
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
		return
	}

	if errors.Is(err, session.ErrNotAuthenticated) {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return
	}

	var forbiddenErr *model.ForbiddenError
	if errors.As(err, &forbiddenErr) {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}

	var vaultErr *model.VaultLockedError
	if errors.As(err, &vaultErr) {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewVaultLockedError())
		return
	}

	var transportErr *model.TransportError
	if errors.As(err, &transportErr) {
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewTransportError(transportErr.Op))
		return
	}

	var jobErr *model.JobError
	if errors.As(err, &jobErr) {
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewSyncJobFailedError(jobErr.Provider))
		return
	}

	var statusErr *model.StatusError
	if errors.As(err, &statusErr) {
		writeAPIErrorResponse(w, statusErr.StatusCode, &model.APIError{
			Code:     "UPSTREAM_ERROR",
			Message:  statusErr.Detail,
			Category: "system",
			Action:   "入力内容を確認して再度お試しください。",
		})
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	// 分類できないエラーは内部エラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
