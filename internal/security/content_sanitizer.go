// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は管理者が入力したイベントのタイトル・説明・場所から
// HTMLタグを取り除き、画面にそのまま表示できるプレーンテキストにする。
// bluemondayのStrictPolicyで全タグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はイベント表示用テキストのサニタイザー。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は全てのHTMLタグを除去したテキストを返す。
// script/styleの中身も除去される。
// 出力はエスケープ済みHTMLではなくプレーンテキスト（&amp; は & に戻す）。
// 前後の空白は取り除く。空文字列には空文字列を返す。
func (s *TextSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
