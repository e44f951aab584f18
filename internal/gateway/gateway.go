// Package gateway はバックエンドAPIへの全リクエストの単一経路を提供する。
// ベアラートークンの付与と、失敗レスポンスの三分類
// （セッション失効・権限不足・ボールト施錠）を一手に引き受ける。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/healthsync/internal/event"
	"github.com/hitoshi/healthsync/internal/model"
)

// maxErrorBodySize はエラーレスポンスボディの読み取り上限。
const maxErrorBodySize = 64 * 1024

// TokenSource はゲートウェイが参照する認証情報の窓口。
// credstore.Storeの部分集合として定義する。
// Clearは401分類の発生源としてゲートウェイだけが呼ぶ。
type TokenSource interface {
	Token() string
	Clear() error
}

// Publisher はプロセス全体シグナルの発火インターフェース。
type Publisher interface {
	Publish(kind event.Kind, payload any)
}

// MetricsRecorder はゲートウェイが記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordRequest(method string, statusCode int)
	RecordSignal(kind string)
}

// Config はゲートウェイの設定。
type Config struct {
	BaseURL        string  // バックエンドAPIのベースURL
	RateLimitRPS   float64 // 送信レート上限（req/sec）
	RateLimitBurst int     // バーストサイズ
}

// Gateway はバックエンドAPIのクライアント。
// すべての呼び出しがここを通り、分類済みエラーはシグナル発火と
// 呼び出し元への返却の両方を必ず行う。
type Gateway struct {
	httpClient *http.Client
	baseURL    string
	creds      TokenSource
	bus        Publisher
	metrics    MetricsRecorder
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New はGatewayの新しいインスタンスを生成する。
// RateLimitRPSが0以下の場合はレート制限を実質無効（上限なし）にする。
func New(
	httpClient *http.Client,
	creds TokenSource,
	bus Publisher,
	metrics MetricsRecorder,
	logger *slog.Logger,
	cfg Config,
) *Gateway {
	limit := rate.Inf
	burst := 0
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
		burst = cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
	}
	return &Gateway{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		creds:      creds,
		bus:        bus,
		metrics:    metrics,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// Do はJSONボディのリクエストを送信し、成功時はoutにレスポンスをデコードする。
// bodyがnilの場合はボディなし、outがnilの場合はレスポンスを捨てる。
func (g *Gateway) Do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return g.send(req, out)
}

// PostForm はフォームエンコードのPOSTリクエストを送信する。
// トークン交換エンドポイント（/auth/token）が要求する形式。
func (g *Gateway) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, g.baseURL+path,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return g.send(req, out)
}

// send はリクエストを送信し、レスポンスをステータスで分類する。
// 401/403/503の分類結果はシグナル発火と呼び出し元へのエラー返却の両方を行う。
func (g *Gateway) send(req *http.Request, out any) error {
	op := req.Method + " " + req.URL.Path

	if err := g.limiter.Wait(req.Context()); err != nil {
		return &model.TransportError{Op: op, Err: err}
	}

	req.Header.Set("X-Request-ID", uuid.New().String())
	req.Header.Set("Accept", "application/json")
	if token := g.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.metrics.RecordRequest(req.Method, 0)
		g.logger.Error("バックエンドへのリクエストに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return &model.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	g.metrics.RecordRequest(req.Method, resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return g.handleUnauthorized(op, resp)
	case resp.StatusCode == http.StatusForbidden:
		// 認証済みだが権限不足。セッションは維持し、シグナルも発火しない。
		return &model.ForbiddenError{Detail: readErrorDetail(resp.Body)}
	case resp.StatusCode == http.StatusServiceUnavailable:
		return g.handleVaultLocked(op, resp)
	case resp.StatusCode >= 400:
		// 分類対象外はグローバルな副作用なしにそのまま返す
		return &model.StatusError{
			StatusCode: resp.StatusCode,
			Detail:     readErrorDetail(resp.Body),
		}
	}

	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// handleUnauthorized は401をセッション失効として処理する。
// 永続化された認証情報を破棄し、session-invalidatedシグナルを発火した上で、
// 元のエラーを呼び出し元に返す。
func (g *Gateway) handleUnauthorized(op string, resp *http.Response) error {
	detail := readErrorDetail(resp.Body)

	if err := g.creds.Clear(); err != nil {
		g.logger.Error("認証情報の破棄に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	g.bus.Publish(event.KindSessionInvalidated, nil)
	g.metrics.RecordSignal(string(event.KindSessionInvalidated))

	g.logger.Warn("セッションが無効になりました",
		slog.String("op", op),
	)

	return &model.AuthError{Reason: model.AuthReasonSessionExpired, Detail: detail}
}

// handleVaultLocked は503をボールト施錠として処理する。
// vault-lockedシグナルを発火するが、セッションには手を付けない。
func (g *Gateway) handleVaultLocked(op string, resp *http.Response) error {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))

	g.bus.Publish(event.KindVaultLocked, nil)
	g.metrics.RecordSignal(string(event.KindVaultLocked))

	g.logger.Warn("暗号化ボールトがロックされています",
		slog.String("op", op),
	)

	return &model.VaultLockedError{}
}

// readErrorDetail はエラーレスポンスボディからdetailフィールドを取り出す。
// JSONでない場合はボディ先頭をそのまま返す。
func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(data))
}
