package model

// SyncStage は同期ジョブの進行段階を表す。
type SyncStage string

const (
	// SyncStageStarting はジョブ起動直後の段階。
	SyncStageStarting SyncStage = "starting"
	// SyncStageAuthenticating はプロバイダへのログイン中の段階。
	SyncStageAuthenticating SyncStage = "authenticating"
	// SyncStageCaptcha はCAPTCHA解決待ちの段階。
	SyncStageCaptcha SyncStage = "captcha"
	// SyncStageFetching はドキュメント取得中の段階。
	SyncStageFetching SyncStage = "fetching"
	// SyncStageComplete はジョブ完了の段階。
	SyncStageComplete SyncStage = "complete"
)

// SyncStatus は同期ジョブの進捗スナップショットを表す。
// 永続化されない一時状態で、ポーリング中と終了直後の表示期間のみ存在する。
// Total > 0 のとき Progress <= Total が常に成り立つ。
type SyncStatus struct {
	Stage    SyncStage `json:"stage"`
	Message  string    `json:"message"`
	Progress int       `json:"progress"`
	Total    int       `json:"total"`
	Done     bool      `json:"isComplete"`
	Failed   bool      `json:"isError"`
}

// Clone はスナップショットのコピーを返す。
func (s *SyncStatus) Clone() *SyncStatus {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
