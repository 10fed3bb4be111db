// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// namespaceContextKey はブラウザセッションのnamespaceを格納するキー。
	namespaceContextKey = contextKey("session_namespace")
	// namespaceIssuedContextKey はこのリクエストでnamespaceを新規発行したことを示すキー。
	namespaceIssuedContextKey = contextKey("session_namespace_issued")
	// requestIDContextKey はリクエストIDを格納するキー。
	requestIDContextKey = contextKey("request_id")
)

// SessionCookieConfig はセッションCookieの設定。
type SessionCookieConfig struct {
	Secure bool
	Domain string
	MaxAge int
}

// NewSessionMiddleware はHTTP Only Cookieからブラウザセッションのnamespaceを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、またはUUIDとして不正な場合は新しいnamespaceを発行してCookieに設定する。
// 認証状態そのものはnamespace配下のクライアント状態に保存され、Cookieには含まれない。
func NewSessionMiddleware(config SessionCookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			namespace := ""
			if cookie, err := r.Cookie(sessionCookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					namespace = id.String()
				}
			}

			// 2. なければ新規発行
			ctx := r.Context()
			if namespace == "" {
				namespace = NewNamespace()
				SetSessionCookie(w, config, namespace)
				ctx = context.WithValue(ctx, namespaceIssuedContextKey, true)
			}

			// 3. namespaceをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithNamespace(ctx, namespace)))
		})
	}
}

// NewNamespace は新しいnamespaceを発行する。
func NewNamespace() string {
	return uuid.NewString()
}

// SetSessionCookie はnamespaceをセッションCookieとして設定する。
// ログイン時のnamespace切り替えでも使い、Cookieの有効期限はそこから数え直す。
func SetSessionCookie(w http.ResponseWriter, config SessionCookieConfig, namespace string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    namespace,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   config.MaxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// NamespaceIssued はnamespaceがこのリクエストで新規発行されたものかどうかを返す。
// Cookieを返さないクライアントは毎回新しいnamespaceになる。
func NamespaceIssued(ctx context.Context) bool {
	issued, _ := ctx.Value(namespaceIssuedContextKey).(bool)
	return issued
}

// NamespaceFromContext はリクエストコンテキストからセッションのnamespaceを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func NamespaceFromContext(ctx context.Context) (string, error) {
	ns, ok := ctx.Value(namespaceContextKey).(string)
	if !ok || ns == "" {
		return "", fmt.Errorf("session namespace not found in context")
	}
	return ns, nil
}

// ContextWithNamespace はコンテキストにnamespaceを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithNamespace(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, namespaceContextKey, namespace)
}

// RequestIDFromContext はリクエストIDを返す。なければ空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
