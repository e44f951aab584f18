// Package model はドメインモデルを定義する。
package model

// User は認証済みユーザーのスナップショットを表す。
// 常に全体を置き換え、部分更新はしない（並行リフレッシュ中の
// 中途半端な状態を見せないため）。
type User struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	IsAdmin        bool            `json:"is_admin"`
	LinkedAccounts []LinkedAccount `json:"linked_accounts"`
}

// LinkedAccount は外部医療プロバイダとの連携情報を表す。
// ProviderNameが識別キー（1プロバイダにつき1連携、サーバー側で強制）。
// 認証情報そのものはリンク操作の送信時以外クライアントに保持しない。
type LinkedAccount struct {
	ProviderName string `json:"provider_name"`
	Username     string `json:"username"`
}
