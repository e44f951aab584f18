// Package event はプロセス全体のシグナル配信を提供する。
// ゲートウェイが発火するsession-invalidated / vault-lockedシグナルと、
// セッションコントローラの状態遷移通知を運ぶ。
package event

import (
	"log/slog"
	"sync"
	"time"
)

// Kind はイベントの種別を表す。
type Kind string

const (
	// KindSessionInvalidated はセッション失効シグナル（401分類で発火）。
	KindSessionInvalidated Kind = "session_invalidated"
	// KindVaultLocked はボールト施錠シグナル（503分類で発火）。
	KindVaultLocked Kind = "vault_locked"
	// KindSessionState はセッションコントローラの状態遷移通知。
	KindSessionState Kind = "session_state"
)

// Event はバス上を流れるイベントを表す。
type Event struct {
	Kind       Kind
	Payload    any
	OccurredAt time.Time
}

// Bus は種別ごとの購読チャネルを管理するプロセス内パブサブ。
// Publishはファイアアンドフォーゲットで、購読者の処理を待たない。
type Bus struct {
	logger     *slog.Logger
	bufferSize int

	mu   sync.RWMutex
	subs map[Kind][]chan Event
}

// NewBus は新しいBusを生成する。
// bufferSizeが0以下の場合はデフォルト値16を使用する。
func NewBus(logger *slog.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Bus{
		logger:     logger,
		bufferSize: bufferSize,
		subs:       make(map[Kind][]chan Event),
	}
}

// Subscribe は指定種別のイベントを受信するチャネルと購読解除関数を返す。
// 購読解除後のチャネルはクローズされる。
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Event, func()) {
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	for _, k := range kinds {
		b.subs[k] = append(b.subs[k], ch)
	}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			for _, k := range kinds {
				chans := b.subs[k]
				for i, c := range chans {
					if c == ch {
						b.subs[k] = append(chans[:i], chans[i+1:]...)
						break
					}
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}

	return ch, unsubscribe
}

// Publish は指定種別のイベントを全購読者に配信する。
// 購読者のバッファが満杯の場合はそのイベントを破棄する（ブロックしない）。
func (b *Bus) Publish(kind Kind, payload any) {
	ev := Event{
		Kind:       kind,
		Payload:    payload,
		OccurredAt: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[kind] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("イベントを破棄しました（購読者のバッファが満杯）",
				slog.String("kind", string(kind)),
			)
		}
	}
}
