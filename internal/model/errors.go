package model

import (
	"errors"
	"fmt"
)

// ErrorKind はエラーの分類。画面側はこの分類で表示方法を決める。
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindAuth         ErrorKind = "auth"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindServer       ErrorKind = "server"
	KindConnectivity ErrorKind = "connectivity"
	KindUnknown      ErrorKind = "unknown"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // ユーザー向けメッセージ
	Category string            // カテゴリ: auth, validation, event, church, member, system
	Action   string            // ユーザー向け対処方法
	Kind     ErrorKind         // エラー分類
	Status   int               // バックエンドのHTTPステータス（接続失敗時は0）
	Fields   map[string]string // 入力エラーのあるフィールドとメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsAuth は認証・認可エラー（401/403）かどうかを返す。
func (e *APIError) IsAuth() bool {
	return e.Kind == KindAuth
}

// AsAPIError はerrから*APIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeServerError      = "SERVER_ERROR"
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeUnknown          = "UNKNOWN_ERROR"
	ErrCodeInvalidBody      = "INVALID_BODY"
	ErrCodeAlreadyRunning   = "ALREADY_RUNNING"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeCSRFFailed       = "CSRF_FAILED"
)

// NewValidationError はフォーム入力エラーを生成する。
// fieldsにはエラーのあるフィールド名とメッセージを渡す。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  "Dados inválidos. Verifique os campos.",
		Category: "validation",
		Action:   "Corrija os campos destacados e tente novamente.",
		Kind:     KindValidation,
		Status:   400,
		Fields:   fields,
	}
}

// NewInvalidBodyError はリクエストボディが解釈できない場合のエラーを生成する。
func NewInvalidBodyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBody,
		Message:  "Requisição inválida.",
		Category: "validation",
		Action:   "Envie um corpo JSON válido.",
		Kind:     KindValidation,
		Status:   400,
	}
}

// NewUnauthenticatedError は未ログイン状態で保護された操作を行った場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Sessão expirada. Faça login novamente.",
		Category: "auth",
		Action:   "Faça login para continuar.",
		Kind:     KindAuth,
		Status:   401,
	}
}

// NewForbiddenError は権限不足のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Acesso negado.",
		Category: "auth",
		Action:   "Esta área é restrita a administradores.",
		Kind:     KindAuth,
		Status:   403,
	}
}

// NewAlreadyRunningError は同じ操作が処理中の場合のエラーを生成する（二重送信防止）。
func NewAlreadyRunningError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRunning,
		Message:  fmt.Sprintf("Operação em andamento: %s", operation),
		Category: "system",
		Action:   "Aguarde a conclusão da operação atual.",
		Kind:     KindConflict,
		Status:   409,
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Erro interno. Tente novamente mais tarde.",
		Category: "system",
		Action:   "Aguarde alguns instantes e tente novamente.",
		Kind:     KindServer,
		Status:   500,
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Muitas requisições. Tente novamente em instantes.",
		Category: "system",
		Action:   "Aguarde o tempo indicado e tente novamente.",
		Kind:     KindUnknown,
		Status:   429,
	}
}

// NewCSRFError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "Requisição não autorizada.",
		Category: "auth",
		Action:   "Recarregue a página e tente novamente.",
		Kind:     KindValidation,
		Status:   403,
	}
}
