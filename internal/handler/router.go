package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/healthsync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	CORSAllowedOrigin string

	// /metrics で公開するPrometheusハンドラー
	MetricsHandler http.Handler

	SessionService SessionServiceInterface
	AccountService AccountServiceInterface
	SyncService    SyncServiceInterface
	VaultService   VaultServiceInterface
}

// NewRouter はエージェントAPIの全ルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → CORS
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	sessionHandler := NewSessionHandler(deps.SessionService)
	accountHandler := NewAccountHandler(deps.AccountService)
	syncHandler := NewSyncHandler(deps.SyncService)
	vaultHandler := NewVaultHandler(deps.VaultService)

	// --- エージェントAPI ---

	r.Route("/agent", func(r chi.Router) {
		// セッション管理
		r.Post("/login", sessionHandler.Login)
		r.Post("/register", sessionHandler.Register)
		r.Post("/logout", sessionHandler.Logout)
		r.Get("/session", sessionHandler.GetSession)

		// プロバイダアカウント連携
		r.Post("/link", accountHandler.Link)

		// 同期ジョブ
		r.Route("/sync/{provider}", func(r chi.Router) {
			r.Post("/", syncHandler.StartSync)
			r.Delete("/", syncHandler.CancelSync)
		})
		r.Get("/sync-status", syncHandler.ListSyncStatuses)
		r.Get("/sync-status/{provider}", syncHandler.GetSyncStatus)

		// ボールト管理
		r.Route("/vault", func(r chi.Router) {
			r.Get("/", vaultHandler.GetStatus)
			r.Post("/unlock", vaultHandler.Unlock)
			r.Post("/initialize", vaultHandler.Initialize)
		})
	})

	// --- 運用エンドポイント ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	return r
}
