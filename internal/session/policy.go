package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hitoshi/churchadmin/internal/model"
)

// 画面のパス
const (
	PathLogin     = "/login"
	PathDashboard = "/dashboard"
	PathAdmin     = "/admin"
)

// 強制ログアウトの理由
const (
	ReasonUnauthorized = "unauthorized"
	ReasonForbidden    = "forbidden"
)

// Destination はログイン状態と権限から遷移先を決める。
// ADMIN は管理画面、その他の権限は一般画面、未ログインはログイン画面。
// プロフィールがない場合はトークンがあっても未ログインとして扱う。
func Destination(authenticated bool, user *model.UserProfile) string {
	if !authenticated || user == nil {
		return PathLogin
	}
	if user.Role.IsAdmin() {
		return PathAdmin
	}
	return PathDashboard
}

// ReasonFor はHTTPステータスから強制ログアウトの理由を返す。
func ReasonFor(status int) string {
	if status == http.StatusForbidden {
		return ReasonForbidden
	}
	return ReasonUnauthorized
}

// Navigator は画面遷移の指示を受け取る。
type Navigator interface {
	Navigate(nav model.Navigation)
}

// NavigationRecorder はリクエスト中に発生した画面遷移の指示を記録する。
type NavigationRecorder struct {
	mu  sync.Mutex
	nav *model.Navigation
}

// Navigate は遷移指示を記録する。複数回呼ばれた場合は最初の指示を保持する。
func (r *NavigationRecorder) Navigate(nav model.Navigation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nav == nil {
		r.nav = &nav
	}
}

// Navigation は記録された遷移指示を返す。なければnil。
func (r *NavigationRecorder) Navigation() *model.Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nav
}

// InvalidationObserver は強制ログアウトの発生を記録する。
type InvalidationObserver interface {
	RecordSessionInvalidation(reason string)
}

// Invalidator は保護されたリソースの401/403を受けてセッションを破棄し、
// ログイン画面への遷移を指示する。backend.Authorizer を満たす。
type Invalidator struct {
	store     *Store
	navigator Navigator
	returnURL string
	logger    *slog.Logger
	observer  InvalidationObserver
}

// NewInvalidator はInvalidatorを生成する。returnURLはログイン後に戻る画面のURL。
func NewInvalidator(store *Store, navigator Navigator, returnURL string, logger *slog.Logger) *Invalidator {
	return &Invalidator{
		store:     store,
		navigator: navigator,
		returnURL: returnURL,
		logger:    logger,
	}
}

// WithObserver は強制ログアウトの記録先を設定する。
func (i *Invalidator) WithObserver(o InvalidationObserver) *Invalidator {
	i.observer = o
	return i
}

// Token は保存済みのトークンを返す。
func (i *Invalidator) Token(ctx context.Context) (string, error) {
	return i.store.Token(ctx)
}

// HandleAuthFailure はセッションを破棄してログイン画面への遷移を指示する。
func (i *Invalidator) HandleAuthFailure(ctx context.Context, status int) {
	reason := ReasonFor(status)

	// リクエストがキャンセルされていてもセッションは必ず破棄する
	if err := i.store.Logout(context.WithoutCancel(ctx)); err != nil {
		i.logger.Error("強制ログアウト時のセッション破棄に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	i.logger.Warn("認証エラーのためセッションを破棄しました",
		slog.Int("http_status", status),
		slog.String("reason", reason),
		slog.String("return_url", i.returnURL),
	)

	if i.observer != nil {
		i.observer.RecordSessionInvalidation(reason)
	}

	i.navigator.Navigate(model.Navigation{
		Path:      PathLogin,
		ReturnURL: i.returnURL,
		Reason:    reason,
	})
}
