package syncjob

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Arena はプロバイダ名をキーとするトラッカーの集合を所有する。
// トラッカー同士は完全に独立で、キー付きエントリであること以外に
// 共有状態を持たない。
type Arena struct {
	baseCtx   context.Context
	gw        Gateway
	metrics   MetricsRecorder
	logger    *slog.Logger
	cfg       Config
	sanitizer *bluemonday.Policy

	mu       sync.Mutex
	trackers map[string]*Tracker
}

// NewArena はArenaの新しいインスタンスを生成する。
// baseCtxのキャンセルで全トラッカーのポーリングループが止まる。
func NewArena(
	baseCtx context.Context,
	gw Gateway,
	metrics MetricsRecorder,
	logger *slog.Logger,
	cfg Config,
) *Arena {
	return &Arena{
		baseCtx:   baseCtx,
		gw:        gw,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		sanitizer: bluemonday.StrictPolicy(),
		trackers:  make(map[string]*Tracker),
	}
}

// Tracker は指定プロバイダのトラッカーを返す。なければ生成する。
func (a *Arena) Tracker(provider string) *Tracker {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.trackers[provider]
	if !ok {
		t = newTracker(a.baseCtx, provider, a.gw, a.metrics, a.logger, a.sanitizer, a.cfg)
		a.trackers[provider] = t
	}
	return t
}

// Start は指定プロバイダの同期ジョブを起動する。
func (a *Arena) Start(ctx context.Context, provider string) (Snapshot, error) {
	return a.Tracker(provider).Start(ctx)
}

// Status は指定プロバイダの現在のスナップショットを返す。
// 未追跡のプロバイダはidleのスナップショットになる。
func (a *Arena) Status(provider string) Snapshot {
	return a.Tracker(provider).Snapshot()
}

// Cancel は指定プロバイダの追跡を打ち切る。未追跡なら何もしない。
func (a *Arena) Cancel(provider string) {
	a.mu.Lock()
	t, ok := a.trackers[provider]
	a.mu.Unlock()

	if ok {
		t.Cancel()
	}
}

// CancelAll は全トラッカーの追跡を打ち切る。
// ログアウトとシャットダウン時に呼ばれる。
func (a *Arena) CancelAll() {
	a.mu.Lock()
	trackers := make([]*Tracker, 0, len(a.trackers))
	for _, t := range a.trackers {
		trackers = append(trackers, t)
	}
	a.mu.Unlock()

	for _, t := range trackers {
		t.Cancel()
	}

	if len(trackers) > 0 {
		a.logger.Info("全トラッカーを停止しました",
			slog.Int("tracker_count", len(trackers)),
		)
	}
}

// Snapshots は全トラッカーのスナップショットをプロバイダ名順で返す。
func (a *Arena) Snapshots() []Snapshot {
	a.mu.Lock()
	trackers := make([]*Tracker, 0, len(a.trackers))
	for _, t := range a.trackers {
		trackers = append(trackers, t)
	}
	a.mu.Unlock()

	snaps := make([]Snapshot, 0, len(trackers))
	for _, t := range trackers {
		snaps = append(snaps, t.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Provider < snaps[j].Provider
	})
	return snaps
}
