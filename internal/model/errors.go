package model

import "fmt"

// AuthReason は認証エラーの原因分類。
type AuthReason string

const (
	// AuthReasonInvalidCredentials は資格情報の誤りを示す。
	AuthReasonInvalidCredentials AuthReason = "invalid_credentials"
	// AuthReasonSessionExpired はセッション失効（401分類）を示す。
	AuthReasonSessionExpired AuthReason = "session_expired"
)

// TransportError はネットワーク到達不能などの転送層エラーを表す。
// グローバルシグナルは発火しない。
type TransportError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

// Unwrap はラップされた元エラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError は認証エラー（401分類または資格情報誤り）を表す。
type AuthError struct {
	Reason AuthReason
	Detail string
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("auth error (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("auth error (%s)", e.Reason)
}

// ForbiddenError は認証済みだが権限不足（403分類）を表す。
// セッションは維持される。401と同一視してはならない。
type ForbiddenError struct {
	Detail string
}

// Error はerrorインターフェースを実装する。
func (e *ForbiddenError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("forbidden: %s", e.Detail)
	}
	return "forbidden"
}

// VaultLockedError はサーバー側暗号化ボールトの施錠状態（503分類）を表す。
type VaultLockedError struct{}

// Error はerrorインターフェースを実装する。
func (e *VaultLockedError) Error() string {
	return "encryption vault is locked"
}

// StatusError は分類対象外のHTTPエラーステータスを表す。
// グローバルな副作用なしに呼び出し元へそのまま伝搬する。
type StatusError struct {
	StatusCode int
	Detail     string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// JobError は同期ジョブの失敗を表す。
// 該当プロバイダのトラッカーに閉じたエラーで、グローバルシグナルは発火しない。
type JobError struct {
	Provider string
	Message  string
}

// Error はerrorインターフェースを実装する。
func (e *JobError) Error() string {
	return fmt.Sprintf("sync job failed (%s): %s", e.Provider, e.Message)
}

// APIError はエージェントAPIの統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, sync, vault, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeVaultLocked        = "VAULT_LOCKED"
	ErrCodeTransport          = "TRANSPORT_ERROR"
	ErrCodeSyncJobFailed      = "SYNC_JOB_FAILED"
	ErrCodeProviderRequired   = "PROVIDER_REQUIRED"
	ErrCodeNotAuthenticated   = "NOT_AUTHENTICATED"
)

// NewSessionExpiredError はセッション失効エラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションが無効になりました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewInvalidCredentialsError は資格情報誤りエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
// セッション自体は有効なため、再ログインは不要。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewVaultLockedError はボールト施錠エラーを生成する。
func NewVaultLockedError() *APIError {
	return &APIError{
		Code:     ErrCodeVaultLocked,
		Message:  "サーバーの暗号化ボールトがロックされています。",
		Category: "vault",
		Action:   "マスターパスワードでボールトを解錠してください。",
	}
}

// NewTransportError は転送層エラーを生成する。
func NewTransportError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeTransport,
		Message:  fmt.Sprintf("サーバーに接続できませんでした: %s", reason),
		Category: "system",
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewSyncJobFailedError は同期ジョブ失敗エラーを生成する。
func NewSyncJobFailedError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeSyncJobFailed,
		Message:  fmt.Sprintf("プロバイダ %s の同期に失敗しました。", provider),
		Category: "sync",
		Action:   "連携アカウントの設定を確認し、再度同期を開始してください。",
	}
}

// NewProviderRequiredError はプロバイダ名未指定エラーを生成する。
func NewProviderRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderRequired,
		Message:  "プロバイダ名が指定されていません。",
		Category: "validation",
		Action:   "プロバイダ名を指定してください。",
	}
}

// NewNotAuthenticatedError は未認証エラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "先にログインしてください。",
	}
}
