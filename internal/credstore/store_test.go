package credstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hitoshi/healthsync/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "credentials.json"))
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := newTestStore(t)

	creds, err := s.Load()
	if err != nil {
		t.Fatalf("ファイル未存在時にエラーを返した: %v", err)
	}
	if creds.Token != "" {
		t.Errorf("Token = %q, want 空文字", creds.Token)
	}
	if creds.User != nil {
		t.Errorf("User = %v, want nil", creds.User)
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)

	saved := &Credentials{
		Token: "token-abc",
		User: &model.User{
			ID:    "user-1",
			Email: "patient@example.com",
			LinkedAccounts: []model.LinkedAccount{
				{ProviderName: "Synevo", Username: "patient01"},
			},
		},
	}
	if err := s.Save(saved); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}
	if loaded.Token != "token-abc" {
		t.Errorf("Token = %q, want token-abc", loaded.Token)
	}
	if loaded.User == nil || loaded.User.Email != "patient@example.com" {
		t.Errorf("User = %+v, want Email=patient@example.com", loaded.User)
	}
	if len(loaded.User.LinkedAccounts) != 1 || loaded.User.LinkedAccounts[0].ProviderName != "Synevo" {
		t.Errorf("LinkedAccounts = %+v, want Synevo", loaded.User.LinkedAccounts)
	}
}

func TestStore_FilePermissions(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(&Credentials{Token: "t"}); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		t.Fatalf("Stat がエラーを返した: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("ファイルパーミッション = %o, want 600", info.Mode().Perm())
	}
}

func TestStore_Token(t *testing.T) {
	s := newTestStore(t)

	if got := s.Token(); got != "" {
		t.Errorf("未保存時のToken = %q, want 空文字", got)
	}

	if err := s.Save(&Credentials{Token: "token-xyz"}); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}
	if got := s.Token(); got != "token-xyz" {
		t.Errorf("Token = %q, want token-xyz", got)
	}
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(&Credentials{Token: "t"}); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear がエラーを返した: %v", err)
	}
	// 2回目も成功しなければならない
	if err := s.Clear(); err != nil {
		t.Fatalf("2回目のClear がエラーを返した: %v", err)
	}

	if got := s.Token(); got != "" {
		t.Errorf("Clear後のToken = %q, want 空文字", got)
	}
}

func TestStore_LoadBrokenFile(t *testing.T) {
	s := newTestStore(t)

	if err := os.WriteFile(s.path, []byte("{壊れたJSON"), 0o600); err != nil {
		t.Fatalf("テストファイルの書き込みに失敗: %v", err)
	}

	if _, err := s.Load(); err == nil {
		t.Fatal("壊れたファイルの読み込みはエラーを返さなければならない")
	}
}
