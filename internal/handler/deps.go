// Package handler はブラウザ向けのHTTPハンドラーを提供する。
//
// ハンドラーはリクエストごとにブラウザセッションのStoreとバックエンドクライアントを
// 組み立て、保護されたリソースの401/403で発生した画面遷移の指示をレスポンスに含める。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/churchadmin/internal/audit"
	"github.com/hitoshi/churchadmin/internal/backend"
	"github.com/hitoshi/churchadmin/internal/calendar"
	"github.com/hitoshi/churchadmin/internal/event"
	"github.com/hitoshi/churchadmin/internal/loading"
	"github.com/hitoshi/churchadmin/internal/middleware"
	"github.com/hitoshi/churchadmin/internal/model"
	"github.com/hitoshi/churchadmin/internal/session"
)

// ReturnURLHeader は画面側の現在のURLを受け取るヘッダー名。
// 強制ログアウト後にログイン画面から戻る先として使う。
const ReturnURLHeader = "X-Return-URL"

// Metrics はハンドラーが記録するメトリクス。
type Metrics interface {
	session.InvalidationObserver
	RecordLogin(result string)
}

type nopMetrics struct{}

func (nopMetrics) RecordSessionInvalidation(string) {}
func (nopMetrics) RecordLogin(string)               {}

// Deps はハンドラーが必要とする依存関係をまとめた構造体。
type Deps struct {
	Backend    *backend.Client
	Sessions   *session.Factory
	Normalizer *event.Normalizer
	Exporter   *calendar.Exporter
	Tracker    *loading.Tracker
	Auditor    *audit.Auditor
	Metrics    Metrics
	Logger     *slog.Logger

	// SessionCookie はセッションCookieの設定。ログイン時の再発行にも使う。
	SessionCookie middleware.SessionCookieConfig
}

func (d *Deps) metrics() Metrics {
	if d.Metrics == nil {
		return nopMetrics{}
	}
	return d.Metrics
}

// requestScope は1リクエスト分のセッションとバックエンドクライアント。
type requestScope struct {
	namespace string
	store     *session.Store
	nav       *session.NavigationRecorder
	api       *backend.SessionClient
}

type contextKey string

var (
	scopeContextKey = contextKey("request_scope")
	userContextKey  = contextKey("user")
)

// newScope はリクエストのnamespaceからセッションとクライアントを組み立てる。
func (d *Deps) newScope(r *http.Request) (*requestScope, error) {
	ns, err := middleware.NamespaceFromContext(r.Context())
	if err != nil {
		return nil, err
	}
	store := d.Sessions.For(ns)
	nav := &session.NavigationRecorder{}
	inv := session.NewInvalidator(store, nav, returnURLFor(r), d.Logger).WithObserver(d.metrics())
	return &requestScope{
		namespace: ns,
		store:     store,
		nav:       nav,
		api:       d.Backend.ForSession(inv),
	}, nil
}

// returnURLFor はログイン後に戻る画面のURLを決める。
// ヘッダーがなければBFFのパスから /app を除いたものを使う。
func returnURLFor(r *http.Request) string {
	if u := r.Header.Get(ReturnURLHeader); strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") {
		return u
	}
	p := strings.TrimPrefix(r.URL.Path, "/app")
	if p == "" {
		return "/"
	}
	return p
}

// withScope はリクエストスコープをコンテキストに注入するミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (d *Deps) withScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc, err := d.newScope(r)
		if err != nil {
			d.Logger.Error("リクエストスコープの構築に失敗しました", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeContextKey, sc)))
	})
}

// snapshot はトークンとプロフィールを1回の読み取りで取得する。
// 読み取りに失敗した場合は未ログインとして扱う。
func (sc *requestScope) snapshot(ctx context.Context, logger *slog.Logger) model.Session {
	snap, err := sc.store.Snapshot(ctx)
	if err != nil {
		logger.Error("セッションの読み取りに失敗しました", slog.String("error", err.Error()))
		return model.Session{}
	}
	return snap
}

func scopeFrom(ctx context.Context) *requestScope {
	sc, _ := ctx.Value(scopeContextKey).(*requestScope)
	return sc
}

func userFrom(ctx context.Context) *model.UserProfile {
	u, _ := ctx.Value(userContextKey).(*model.UserProfile)
	return u
}

// requireAuth はログイン済みでなければ401とログイン画面への遷移指示を返す。
// プロフィールのないトークンは未ログインとして扱う。
func (d *Deps) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sc := scopeFrom(ctx)
		snap := sc.snapshot(ctx, d.Logger)
		if snap.Token == "" || snap.User == nil {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError(), &model.Navigation{
				Path:      session.PathLogin,
				ReturnURL: returnURLFor(r),
				Reason:    session.ReasonUnauthorized,
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userContextKey, snap.User)))
	})
}

// requireAdmin は管理者でなければ403と一般画面への遷移指示を返す。
// requireAuthの後に配置する。
func (d *Deps) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		if user == nil || !user.Role.IsAdmin() {
			writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(), &model.Navigation{
				Path:   session.Destination(user != nil, user),
				Reason: session.ReasonForbidden,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
