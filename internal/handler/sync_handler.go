package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/syncjob"
)

// SyncServiceInterface は同期ハンドラーが必要とするサービスインターフェース。
type SyncServiceInterface interface {
	// Start はプロバイダの同期ジョブを開始する。進行中の場合は現状を返す。
	Start(ctx context.Context, provider string) (syncjob.Snapshot, error)
	// Status はプロバイダの現在のトラッカー状態を返す。
	Status(provider string) syncjob.Snapshot
	// Cancel はプロバイダのポーリングを停止し、表示状態をクリアする。
	Cancel(provider string)
	// Snapshots は全トラッカーの状態をプロバイダ名順で返す。
	Snapshots() []syncjob.Snapshot
}

// SyncHandler は同期ジョブ操作のHTTPハンドラー。
type SyncHandler struct {
	service SyncServiceInterface
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(service SyncServiceInterface) *SyncHandler {
	return &SyncHandler{
		service: service,
	}
}

// StartSync はプロバイダの同期ジョブを開始する。
// POST /agent/sync/{provider}
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if provider == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewProviderRequiredError())
		return
	}

	snap, err := h.service.Start(r.Context(), provider)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, snap)
}

// GetSyncStatus はプロバイダの現在の同期状態を返す。
// GET /agent/sync-status/{provider}
func (h *SyncHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if provider == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewProviderRequiredError())
		return
	}

	writeJSON(w, http.StatusOK, h.service.Status(provider))
}

// ListSyncStatuses は全トラッカーの状態を返す。
// GET /agent/sync-status
func (h *SyncHandler) ListSyncStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Snapshots())
}

// CancelSync はプロバイダのポーリングを停止する。
// DELETE /agent/sync/{provider}
func (h *SyncHandler) CancelSync(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if provider == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewProviderRequiredError())
		return
	}

	h.service.Cancel(provider)
	w.WriteHeader(http.StatusNoContent)
}
