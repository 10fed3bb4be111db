// Package repository はデータ永続化のインターフェースを定義する。
package repository

import "context"

// ClientStateRepository はブラウザごとのクライアント状態（キーと文字列値）の永続化インターフェース。
// namespace はブラウザのセッションCookieの値で、ブラウザ間で状態は共有されない。
type ClientStateRepository interface {
	// GetItems は指定キーの値をまとめて取得する。存在しないキーは結果に含まれない。
	GetItems(ctx context.Context, namespace string, keys ...string) (map[string]string, error)

	// SetItems は複数のキーを1つのトランザクションで書き込む。
	// 一部だけが書き込まれた状態は観測されない。
	SetItems(ctx context.Context, namespace string, items map[string]string) error

	// RemoveItems は複数のキーを1つのトランザクションで削除する。
	// 存在しないキーの削除はエラーにならない。
	RemoveItems(ctx context.Context, namespace string, keys ...string) error
}
