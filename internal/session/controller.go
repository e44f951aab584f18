// Package session は認証済みユーザーのライフサイクルを管理する。
// 起動時のハイドレーション、ログイン、登録、ログアウトを提供し、
// 状態遷移をイベントバスに通知する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/healthsync/internal/credstore"
	"github.com/hitoshi/healthsync/internal/event"
	"github.com/hitoshi/healthsync/internal/model"
)

// State はセッションコントローラの状態を表す。
type State string

const (
	// StateUninitialized はハイドレーション前の初期状態。
	StateUninitialized State = "uninitialized"
	// StateHydrating は永続化トークンの検証中の状態。
	StateHydrating State = "hydrating"
	// StateAuthenticated は認証済みの状態。
	StateAuthenticated State = "authenticated"
	// StateAnonymous は未認証の状態。
	StateAnonymous State = "anonymous"
)

// ErrNotAuthenticated は認証済みセッションを要する操作が
// 未認証状態で呼ばれたことを示す。
var ErrNotAuthenticated = errors.New("not authenticated")

// Gateway はバックエンド呼び出しのインターフェース。
// gateway.Gatewayの部分集合として定義する。
type Gateway interface {
	Do(ctx context.Context, method, path string, body any, out any) error
	PostForm(ctx context.Context, path string, form url.Values, out any) error
}

// CredentialStore は認証情報の永続化インターフェース。
// 書き込みの所有者はこのコントローラ。
type CredentialStore interface {
	Load() (*credstore.Credentials, error)
	Save(creds *credstore.Credentials) error
	Clear() error
}

// Publisher は状態遷移通知の発行インターフェース。
type Publisher interface {
	Publish(kind event.Kind, payload any)
}

// tokenResponse はトークンエンドポイントのレスポンスを表す。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	RecoveryKey string `json:"recovery_key"`
}

// RegisterResult は登録成功時の結果を表す。
// RecoveryKeyは初回登録時にのみ返され、この場で表示する以外に保持しない。
type RegisterResult struct {
	User        *model.User
	RecoveryKey string
}

// Controller はセッション状態のオーナー。
// Sessionの書き換えはすべてここを通る。
type Controller struct {
	gw     Gateway
	creds  CredentialStore
	bus    Publisher
	logger *slog.Logger

	mu    sync.RWMutex
	state State
	user  *model.User
}

// NewController はControllerの新しいインスタンスを生成する。
// 初期状態はuninitializedで、Hydrateの呼び出しを待つ。
func NewController(gw Gateway, creds CredentialStore, bus Publisher, logger *slog.Logger) *Controller {
	return &Controller{
		gw:     gw,
		creds:  creds,
		bus:    bus,
		logger: logger,
		state:  StateUninitialized,
	}
}

// State は現在の状態を返す。
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CurrentUser は現在のユーザースナップショットを返す。
// 未認証の場合はnil。スナップショットはイミュータブルとして扱うこと。
func (c *Controller) CurrentUser() *model.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Hydrate はプロセス起動時に1回呼ばれ、永続化トークンからセッションを復元する。
// トークンがない・期限切れ・検証失敗のいずれの場合もanonymousに収束する。
// 明示的なログアウト以外でセッションを破棄するのはこの経路だけ。
func (c *Controller) Hydrate(ctx context.Context) error {
	c.setState(StateHydrating, nil)

	creds, err := c.creds.Load()
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to load persisted credentials: %w", err)
	}

	if creds.Token == "" {
		c.setState(StateAnonymous, nil)
		return nil
	}

	// ローカルで期限切れが分かるトークンで無駄な往復をしない
	if tokenExpired(creds.Token) {
		c.logger.Info("永続化トークンが期限切れのためセッションを復元しません")
		c.teardown()
		return nil
	}

	var user model.User
	if err := c.gw.Do(ctx, "GET", "/users/me", nil, &user); err != nil {
		c.teardown()
		return fmt.Errorf("failed to validate persisted session: %w", err)
	}

	c.cacheUser(creds.Token, &user)
	c.setState(StateAuthenticated, &user)

	c.logger.Info("セッションを復元しました",
		slog.String("user_id", user.ID),
	)
	return nil
}

// Login は資格情報をトークンに交換し、ユーザースナップショットを取得する。
// 2段階とも成功した場合のみauthenticatedに遷移する。2段階目が失敗した場合は
// トークンを破棄してanonymousに戻す（中途半端なセッションを残さない）。
func (c *Controller) Login(ctx context.Context, email, password string) (*model.User, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var tok tokenResponse
	if err := c.gw.PostForm(ctx, "/auth/token", form, &tok); err != nil {
		// 未ログイン状態のトークンエンドポイントの401は資格情報誤り
		var authErr *model.AuthError
		if errors.As(err, &authErr) {
			return nil, &model.AuthError{
				Reason: model.AuthReasonInvalidCredentials,
				Detail: authErr.Detail,
			}
		}
		return nil, err
	}

	user, err := c.completeAuth(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	c.logger.Info("ログインしました", slog.String("user_id", user.ID))
	return user, nil
}

// Register は新規ユーザーを登録する。契約はLoginと同じ2段階。
func (c *Controller) Register(ctx context.Context, email, password string, acceptedTerms bool) (*RegisterResult, error) {
	body := map[string]any{
		"email":          email,
		"password":       password,
		"accepted_terms": acceptedTerms,
	}

	var tok tokenResponse
	if err := c.gw.Do(ctx, "POST", "/auth/register", body, &tok); err != nil {
		return nil, err
	}

	user, err := c.completeAuth(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	c.logger.Info("ユーザーを登録しました", slog.String("user_id", user.ID))
	return &RegisterResult{User: user, RecoveryKey: tok.RecoveryKey}, nil
}

// Logout はセッションを破棄してanonymousに遷移する。
// すでにanonymousでも安全に呼べる（冪等）。
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.creds.Clear(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	c.setState(StateAnonymous, nil)
	c.logger.Info("ログアウトしました")
	return nil
}

// Refresh はユーザースナップショットを再取得して全体を置き換える。
// 連携アカウントの追加後などに呼ばれる。
func (c *Controller) Refresh(ctx context.Context) (*model.User, error) {
	if c.State() != StateAuthenticated {
		return nil, ErrNotAuthenticated
	}

	var user model.User
	if err := c.gw.Do(ctx, "GET", "/users/me", nil, &user); err != nil {
		return nil, fmt.Errorf("failed to refresh user: %w", err)
	}

	c.mu.Lock()
	c.user = &user
	c.mu.Unlock()

	if creds, err := c.creds.Load(); err == nil && creds.Token != "" {
		c.cacheUser(creds.Token, &user)
	}

	return &user, nil
}

// Watch はイベントバスからのシグナルを監視する。
// session-invalidatedを受信したらanonymousに遷移する。
// コンテキストのキャンセルまたはチャネルのクローズで終了する。
func (c *Controller) Watch(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == event.KindSessionInvalidated {
				// 永続化トークンはシグナルの発生源（ゲートウェイ）が破棄済み
				c.setState(StateAnonymous, nil)
				c.logger.Warn("セッション失効シグナルを受信しました")
			}
		}
	}
}

// completeAuth はトークンを永続化し、ユーザースナップショットを取得する。
// スナップショット取得に失敗した場合はトークンを破棄してロールバックする。
func (c *Controller) completeAuth(ctx context.Context, token string) (*model.User, error) {
	if err := c.creds.Save(&credstore.Credentials{Token: token}); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}

	var user model.User
	if err := c.gw.Do(ctx, "GET", "/users/me", nil, &user); err != nil {
		c.teardown()
		return nil, fmt.Errorf("failed to fetch user after token exchange: %w", err)
	}

	c.cacheUser(token, &user)
	c.setState(StateAuthenticated, &user)
	return &user, nil
}

// cacheUser はユーザースナップショットをトークンと併せて永続化する。
// キャッシュ更新の失敗はセッションを壊さない（ログのみ）。
func (c *Controller) cacheUser(token string, user *model.User) {
	if err := c.creds.Save(&credstore.Credentials{Token: token, User: user}); err != nil {
		c.logger.Warn("ユーザースナップショットの保存に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// teardown は永続化情報と状態の両方をanonymousに収束させる。
func (c *Controller) teardown() {
	if err := c.creds.Clear(); err != nil {
		c.logger.Warn("認証情報の破棄に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	c.setState(StateAnonymous, nil)
}

// setState は状態を更新し、変化があった場合のみバスに通知する。
func (c *Controller) setState(state State, user *model.User) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.user = user
	c.mu.Unlock()

	if changed {
		c.bus.Publish(event.KindSessionState, state)
	}
}

// tokenExpired はJWTのexpクレームがローカル時刻で過去かどうかを返す。
// 署名検証はしない（検証はサーバーの責務）。JWTとして読めない場合は
// 期限切れ扱いにせず、サーバーの判断に委ねる。
func tokenExpired(token string) bool {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}
