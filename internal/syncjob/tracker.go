// Package syncjob はプロバイダごとの同期ジョブの起動とポーリング追跡を提供する。
// 1プロバイダにつき同時に1本のポーリングループしか走らないこと、
// キャンセル後の遅延レスポンスが状態を汚さないことを保証する。
package syncjob

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/healthsync/internal/model"
)

// Gateway はバックエンド呼び出しのインターフェース。
// gateway.Gatewayの部分集合として定義する。
type Gateway interface {
	Do(ctx context.Context, method, path string, body any, out any) error
}

// MetricsRecorder はトラッカーが記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordPoll(provider string)
	RecordStalePollDropped(provider string)
	RecordSyncFinished(provider string, failed bool, duration time.Duration)
}

// Config はトラッカーの動作設定。
type Config struct {
	PollInterval time.Duration // ステータスポーリングの間隔
	DisplayDelay time.Duration // 終了ステータスの表示残存時間
}

// withDefaults は未設定の項目にデフォルト値を適用する。
func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 1500 * time.Millisecond
	}
	if c.DisplayDelay <= 0 {
		c.DisplayDelay = 5 * time.Second
	}
	return c
}

// TrackerState はトラッカーの状態を表す。
type TrackerState string

const (
	// StateIdle はジョブ未追跡の状態。
	StateIdle TrackerState = "idle"
	// StateStarting は起動リクエスト送信中の状態。
	StateStarting TrackerState = "starting"
	// StatePolling はポーリングループ稼働中の状態。
	StatePolling TrackerState = "polling"
	// StateComplete はジョブ正常終了の状態。表示期間後にidleへ戻る。
	StateComplete TrackerState = "complete"
	// StateErrored はジョブ失敗の状態。再Startで再実行できる。
	StateErrored TrackerState = "errored"
)

// Snapshot はトラッカーの外部公開用スナップショット。
type Snapshot struct {
	Provider string            `json:"provider"`
	State    TrackerState      `json:"state"`
	Status   *model.SyncStatus `json:"status,omitempty"`
}

// startResponse は同期開始エンドポイントのレスポンスを表す。
type startResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Tracker は単一プロバイダの同期ジョブを追跡する。
//
// 世代カウンタによる強い陳腐化ガードを持つ: ポーリング開始時点の世代を
// 捕捉し、結果適用前にロック下で現在の世代と比較する。StartとCancelは
// 世代を進めるため、キャンセルをまたいだ遅延レスポンスは必ず破棄される。
type Tracker struct {
	provider  string
	gw        Gateway
	metrics   MetricsRecorder
	logger    *slog.Logger
	cfg       Config
	sanitizer *bluemonday.Policy
	baseCtx   context.Context

	mu         sync.Mutex
	state      TrackerState
	status     *model.SyncStatus
	generation uint64
	cancelLoop context.CancelFunc
	clearTimer *time.Timer
	startedAt  time.Time
}

// newTracker はTrackerの新しいインスタンスを生成する。
// ポーリングループの寿命はbaseCtxに従う（Arenaのシャットダウンで止まる）。
func newTracker(
	baseCtx context.Context,
	provider string,
	gw Gateway,
	metrics MetricsRecorder,
	logger *slog.Logger,
	sanitizer *bluemonday.Policy,
	cfg Config,
) *Tracker {
	return &Tracker{
		provider:  provider,
		gw:        gw,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		sanitizer: sanitizer,
		baseCtx:   baseCtx,
		state:     StateIdle,
	}
}

// Snapshot は現在の状態のコピーを返す。
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		Provider: t.provider,
		State:    t.state,
		Status:   t.status.Clone(),
	}
}

// Start は同期ジョブを起動し、受理されたらポーリングループを開始する。
// すでにstarting/pollingの場合は何もせず現在のスナップショットを返す
// （2本目のループは決して作らない）。complete/erroredからは再実行できる。
func (t *Tracker) Start(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	if t.state == StateStarting || t.state == StatePolling {
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, nil
	}

	t.bumpGenerationLocked()
	gen := t.generation
	t.state = StateStarting
	t.status = &model.SyncStatus{Stage: model.SyncStageStarting}
	t.startedAt = time.Now()
	t.mu.Unlock()

	var resp startResponse
	err := t.gw.Do(ctx, "POST", "/users/sync/"+url.PathEscape(t.provider), nil, &resp)

	t.mu.Lock()
	defer t.mu.Unlock()

	// 起動リクエスト中にキャンセルや再起動があった場合、この結果は捨てる
	if gen != t.generation {
		t.metrics.RecordStalePollDropped(t.provider)
		return t.snapshotLocked(), nil
	}

	if err != nil {
		t.failLocked(gen, fmt.Sprintf("同期の開始に失敗しました: %v", err))
		t.logger.Error("同期ジョブの起動に失敗しました",
			slog.String("provider", t.provider),
			slog.String("error", err.Error()),
		)
		return t.snapshotLocked(), err
	}

	if resp.Status == "error" {
		msg := t.sanitize(resp.Message)
		t.failLocked(gen, msg)
		return t.snapshotLocked(), &model.JobError{Provider: t.provider, Message: msg}
	}

	t.state = StatePolling
	loopCtx, cancel := context.WithCancel(t.baseCtx)
	t.cancelLoop = cancel
	go t.pollLoop(loopCtx, gen)

	t.logger.Info("同期ジョブを開始しました",
		slog.String("provider", t.provider),
		slog.Duration("poll_interval", t.cfg.PollInterval),
	)
	return t.snapshotLocked(), nil
}

// Cancel は進行中の追跡を打ち切る。
// 世代を進めるため、飛行中のポーリング結果は適用されない。
// タイマーも残らない。未追跡の場合は何もしない（冪等）。
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bumpGenerationLocked()
	t.state = StateIdle
	t.status = nil
}

// pollLoop は固定間隔でステータスを取得し続ける。
// genはこのループが属する世代。世代が進んだら結果を捨てて終了する。
func (t *Tracker) pollLoop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var status model.SyncStatus
			err := t.gw.Do(ctx, "GET", "/users/sync-status/"+url.PathEscape(t.provider), nil, &status)

			t.mu.Lock()

			// 陳腐化ガード: 取得中に世代が進んでいたら何も変えずに終了
			if gen != t.generation {
				t.metrics.RecordStalePollDropped(t.provider)
				t.mu.Unlock()
				return
			}

			if err != nil {
				t.metrics.RecordSyncFinished(t.provider, true, time.Since(t.startedAt))
				t.failLocked(gen, fmt.Sprintf("同期ステータスの取得に失敗しました: %v", err))
				t.mu.Unlock()
				t.logger.Error("ステータスポーリングに失敗しました",
					slog.String("provider", t.provider),
					slog.String("error", err.Error()),
				)
				return
			}

			t.metrics.RecordPoll(t.provider)
			t.applyStatusLocked(&status)

			if status.Done {
				failed := status.Failed
				if failed {
					t.state = StateErrored
				} else {
					t.state = StateComplete
				}
				t.metrics.RecordSyncFinished(t.provider, failed, time.Since(t.startedAt))
				t.stopLoopLocked()
				t.scheduleClearLocked(gen)
				t.mu.Unlock()

				t.logger.Info("同期ジョブが終了しました",
					slog.String("provider", t.provider),
					slog.Bool("failed", failed),
				)
				return
			}

			t.mu.Unlock()
		}
	}
}

// applyStatusLocked はポーリング結果のスナップショットを適用する。
// メッセージはサニタイズし、Total > 0 のときProgressをTotalに切り詰める。
func (t *Tracker) applyStatusLocked(status *model.SyncStatus) {
	status.Message = t.sanitize(status.Message)
	if status.Total > 0 && status.Progress > status.Total {
		status.Progress = status.Total
	}
	if status.Progress < 0 {
		status.Progress = 0
	}
	t.status = status
}

// failLocked はトラッカーをerroredに遷移させ、ループを止める。
// 自動リトライはしない（再実行は明示的なStartのみ）。
func (t *Tracker) failLocked(gen uint64, message string) {
	t.state = StateErrored
	t.status = &model.SyncStatus{
		Stage:   model.SyncStageComplete,
		Message: message,
		Done:    true,
		Failed:  true,
	}
	t.stopLoopLocked()
	t.scheduleClearLocked(gen)
}

// scheduleClearLocked は表示期間後に終了ステータスを消すタイマーを仕掛ける。
// タイマー発火時に世代が進んでいたら何もしない。
func (t *Tracker) scheduleClearLocked(gen uint64) {
	t.clearTimer = time.AfterFunc(t.cfg.DisplayDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if gen != t.generation {
			return
		}
		t.status = nil
		t.state = StateIdle
	})
}

// bumpGenerationLocked は世代を進め、現行のループとタイマーを止める。
func (t *Tracker) bumpGenerationLocked() {
	t.generation++
	t.stopLoopLocked()
	if t.clearTimer != nil {
		t.clearTimer.Stop()
		t.clearTimer = nil
	}
}

func (t *Tracker) stopLoopLocked() {
	if t.cancelLoop != nil {
		t.cancelLoop()
		t.cancelLoop = nil
	}
}

// sanitize はサーバー由来の表示用メッセージからマークアップを除去する。
func (t *Tracker) sanitize(s string) string {
	if t.sanitizer == nil {
		return s
	}
	return t.sanitizer.Sanitize(s)
}
