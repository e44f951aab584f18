// Package credstore はセッショントークンとユーザースナップショットの
// ローカル永続化を提供する。ビジネスロジックは持たない受動的な保存層。
//
// 書き込みの所有者はセッションコントローラのみ。例外として、
// ゲートウェイが401分類の発生源として Clear を呼ぶことを許す。
package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitoshi/healthsync/internal/model"
)

// Credentials はファイルに永続化する認証情報を表す。
type Credentials struct {
	Token string      `json:"token"`
	User  *model.User `json:"user,omitempty"`
}

// Store は単一JSONファイルに認証情報を保存するストア。
// ファイルは0600、親ディレクトリは0700で作成する。
type Store struct {
	mu   sync.Mutex
	path string
}

// New は指定パスのStoreを生成する。
func New(path string) *Store {
	return &Store{path: path}
}

// Load は永続化された認証情報を読み込む。
// ファイルが存在しない場合は空のCredentialsを返す（エラーにしない）。
func (s *Store) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{}, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return &creds, nil
}

// Save は認証情報をファイルに書き込む。
func (s *Store) Save(creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

// Token は永続化されたトークンを返す。
// 読み込めない場合や未保存の場合は空文字を返す。
func (s *Store) Token() string {
	creds, err := s.Load()
	if err != nil {
		return ""
	}
	return creds.Token
}

// Clear は永続化された認証情報を削除する。
// ファイルが存在しない場合も成功扱い（冪等）。
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}
