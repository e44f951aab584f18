package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/session"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	// Login はメールアドレスとパスワードでログインする。
	Login(ctx context.Context, email, password string) (*model.User, error)
	// Register は新規ユーザーを登録し、即時ログインする。
	Register(ctx context.Context, email, password string, acceptedTerms bool) (*session.RegisterResult, error)
	// Logout はローカルのセッションを破棄する。冪等。
	Logout(ctx context.Context) error
	// State は現在のセッション状態を返す。
	State() session.State
	// CurrentUser は認証済みユーザーのスナップショットを返す。未認証時はnil。
	CurrentUser() *model.User
}

// SessionHandler はセッション操作のHTTPハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{
		service: service,
	}
}

// sessionResponse は現在のセッション状態のAPIレスポンス。
type sessionResponse struct {
	State session.State `json:"state"`
	User  *model.User   `json:"user,omitempty"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerRequest は新規登録リクエストのボディ。
type registerRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	AcceptedTerms bool   `json:"accepted_terms"`
}

// registerResponse は新規登録のAPIレスポンス。
// リカバリーキーはこのレスポンスでのみ返却され、以後取得できない。
type registerResponse struct {
	User        *model.User `json:"user"`
	RecoveryKey string      `json:"recovery_key,omitempty"`
}

// GetSession は現在のセッション状態を返す。
// GET /agent/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{
		State: h.service.State(),
		User:  h.service.CurrentUser(),
	})
}

// Login はメールアドレスとパスワードでログインする。
// POST /agent/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "メールアドレスとパスワードは必須です。",
			Category: "validation",
			Action:   "入力内容を確認してください。",
		})
		return
	}

	user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		State: session.StateAuthenticated,
		User:  user,
	})
}

// Register は新規ユーザーを登録し、即時ログインする。
// POST /agent/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "メールアドレスとパスワードは必須です。",
			Category: "validation",
			Action:   "入力内容を確認してください。",
		})
		return
	}

	result, err := h.service.Register(r.Context(), req.Email, req.Password, req.AcceptedTerms)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		User:        result.User,
		RecoveryKey: result.RecoveryKey,
	})
}

// Logout はローカルのセッションを破棄する。未ログイン時も成功する。
// POST /agent/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
