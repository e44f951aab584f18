// Package vault は暗号化ボールトの管理操作を提供する。
// 管理者専用エンドポイントのクライアント側ラッパー。
package vault

import (
	"context"
	"fmt"
	"log/slog"
)

// Gateway はバックエンド呼び出しのインターフェース。
type Gateway interface {
	Do(ctx context.Context, method, path string, body any, out any) error
}

// Status はボールトの現在の状態を表す。
type Status struct {
	IsConfigured bool `json:"is_configured"`
	IsUnlocked   bool `json:"is_unlocked"`
}

// Client はボールト管理APIのクライアント。
type Client struct {
	gw     Gateway
	logger *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(gw Gateway, logger *slog.Logger) *Client {
	return &Client{
		gw:     gw,
		logger: logger,
	}
}

// maskRequest はマスターパスワードを持つリクエストボディを表す。
// パスワードは送信後に保持しない。
type masterPasswordRequest struct {
	MasterPassword string `json:"master_password"`
}

// Status はボールトの状態を取得する。
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.gw.Do(ctx, "GET", "/admin/vault/status", nil, &st); err != nil {
		return nil, fmt.Errorf("failed to get vault status: %w", err)
	}
	return &st, nil
}

// Unlock はマスターパスワードでボールトを解錠する。
func (c *Client) Unlock(ctx context.Context, masterPassword string) error {
	body := masterPasswordRequest{MasterPassword: masterPassword}
	if err := c.gw.Do(ctx, "POST", "/admin/vault/unlock", body, nil); err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}
	c.logger.Info("ボールトを解錠しました")
	return nil
}

// Initialize はマスターパスワードでボールトを初期化する。
// 既に構成済みの場合はサーバー側で拒否される。
func (c *Client) Initialize(ctx context.Context, masterPassword string) error {
	body := masterPasswordRequest{MasterPassword: masterPassword}
	if err := c.gw.Do(ctx, "POST", "/admin/vault/initialize", body, nil); err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}
	c.logger.Info("ボールトを初期化しました")
	return nil
}
