package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/churchadmin/internal/form"
	"github.com/hitoshi/churchadmin/internal/loading"
	"github.com/hitoshi/churchadmin/internal/metrics"
	"github.com/hitoshi/churchadmin/internal/middleware"
	"github.com/hitoshi/churchadmin/internal/model"
	"github.com/hitoshi/churchadmin/internal/session"
)

// MsgAccountCreated は登録成功時のメッセージ。
const MsgAccountCreated = "Conta criada com sucesso!"

// AuthHandler はログイン状態に関するHTTPハンドラー。
type AuthHandler struct {
	*Deps
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(deps *Deps) *AuthHandler {
	return &AuthHandler{Deps: deps}
}

type sessionResponse struct {
	Authenticated bool               `json:"authenticated"`
	User          *model.UserProfile `json:"user"`
	Destination   string             `json:"destination"`
}

type loginResponse struct {
	User        *model.UserProfile `json:"user"`
	Destination string             `json:"destination"`
}

type messageResponse struct {
	Message     string `json:"message"`
	Destination string `json:"destination,omitempty"`
}

// Session は現在のログイン状態と遷移先を返す。
// ログイン画面でログイン済みのユーザーを権限に応じて振り分けるのに使う。
// GET /app/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)

	snap := sc.snapshot(ctx, h.Logger)
	authenticated := snap.Token != ""

	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: authenticated && snap.User != nil,
		User:          snap.User,
		Destination:   session.Destination(authenticated, snap.User),
	})
}

// Login はログインする。失敗した場合はセッションを変更しない。
// 成功した場合は新しいnamespaceに保存し、セッションCookieを再発行する。
// POST /app/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)

	var f form.LoginForm
	if err := decodeJSON(w, r, &f); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if err := form.Validate(ctx, f); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	release, ok := h.Tracker.TryBegin(sc.namespace, loading.OpLogin)
	if !ok {
		h.handleServiceError(w, r, model.NewAlreadyRunningError(loading.OpLogin))
		return
	}
	defer release()

	fresh := h.Sessions.For(middleware.NewNamespace())
	user, err := fresh.Login(ctx, f.Email, f.Password)
	if err != nil {
		h.metrics().RecordLogin(metrics.LoginFailure)
		h.handleServiceError(w, r, err)
		return
	}
	h.metrics().RecordLogin(metrics.LoginSuccess)
	h.rotateSession(w, r, sc, fresh)

	writeJSON(w, http.StatusOK, loginResponse{
		User:        user,
		Destination: session.Destination(true, user),
	})
}

// Register はアカウントを登録し、ログイン画面へ誘導する。
// POST /app/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)

	var f form.RegisterForm
	if err := decodeJSON(w, r, &f); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if err := form.Validate(ctx, f); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	release, ok := h.Tracker.TryBegin(sc.namespace, loading.OpRegister)
	if !ok {
		h.handleServiceError(w, r, model.NewAlreadyRunningError(loading.OpRegister))
		return
	}
	defer release()

	fresh := h.Sessions.For(middleware.NewNamespace())
	if _, err := fresh.Register(ctx, f.ToRegisterData()); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.rotateSession(w, r, sc, fresh)

	writeJSON(w, http.StatusCreated, messageResponse{
		Message:     MsgAccountCreated,
		Destination: session.PathLogin,
	})
}

// rotateSession は以前のnamespaceの認証状態を消し、新しいnamespaceのCookieを設定する。
// ログイン前に渡されたsession_idに認証状態が残らないようにする。
func (h *AuthHandler) rotateSession(w http.ResponseWriter, r *http.Request, sc *requestScope, fresh *session.Store) {
	if err := sc.store.Logout(r.Context()); err != nil {
		h.Logger.Warn("以前のセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	middleware.SetSessionCookie(w, h.SessionCookie, fresh.Namespace())
}

// Logout はセッションを破棄する。未ログインでも成功する。
// POST /app/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)

	if err := sc.store.Logout(ctx); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"destination": session.PathLogin,
	})
}

// ListChurches は登録フォーム用に教会一覧を返す。認証不要。
// GET /app/churches
func (h *AuthHandler) ListChurches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := scopeFrom(ctx)

	release := h.Tracker.Begin(sc.namespace, loading.OpLoadChurches)
	defer release()

	churches, err := h.Backend.ListChurches(ctx)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"churches": churches,
	})
}

// Loading はこのブラウザセッションで処理中の操作を返す。
// GET /app/loading
func (h *AuthHandler) Loading(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"operations": h.Tracker.Active(sc.namespace),
	})
}
