// Package account はプロバイダアカウントの連携操作を提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/healthsync/internal/model"
)

// Gateway はバックエンド呼び出しのインターフェース。
type Gateway interface {
	Do(ctx context.Context, method, path string, body any, out any) error
}

// UserRefresher は連携後のユーザースナップショット再取得のインターフェース。
// session.Controllerの部分集合として定義する。
type UserRefresher interface {
	Refresh(ctx context.Context) (*model.User, error)
}

// Service はアカウント連携のビジネスロジックを提供する。
type Service struct {
	gw      Gateway
	session UserRefresher
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(gw Gateway, session UserRefresher, logger *slog.Logger) *Service {
	return &Service{
		gw:      gw,
		session: session,
		logger:  logger,
	}
}

// linkRequest は連携エンドポイントのリクエストボディを表す。
type linkRequest struct {
	ProviderName string `json:"provider_name"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

// Link はプロバイダアカウントを連携し、更新されたユーザースナップショットを返す。
// 認証情報はこの送信以外でクライアントに保持しない。
// プロバイダごとに1連携のみ（重複はサーバー側で拒否される）。
func (s *Service) Link(ctx context.Context, providerName, username, password string) (*model.User, error) {
	body := linkRequest{
		ProviderName: providerName,
		Username:     username,
		Password:     password,
	}

	if err := s.gw.Do(ctx, "POST", "/users/link-account", body, nil); err != nil {
		return nil, fmt.Errorf("failed to link account: %w", err)
	}

	s.logger.Info("プロバイダアカウントを連携しました",
		slog.String("provider", providerName),
	)

	user, err := s.session.Refresh(ctx)
	if err != nil {
		// 連携自体は成功している。スナップショットの更新失敗のみ伝える。
		return nil, fmt.Errorf("account linked but failed to refresh user: %w", err)
	}
	return user, nil
}
