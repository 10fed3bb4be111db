package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/churchadmin/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// statusにはバックエンドのHTTPステータス（接続失敗時は0）を入れる。
// 画面遷移が必要な場合はnavigationを含む。
type ErrorResponseBody struct {
	Status     int               `json:"status"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Action     string            `json:"action"`
	Fields     map[string]string `json:"fields,omitempty"`
	Navigation *model.Navigation `json:"navigation,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteErrorResponseWithNavigation(w, statusCode, apiErr, nil)
}

// WriteErrorResponseWithNavigation は遷移指示付きのエラーレスポンスを書き込む。
func WriteErrorResponseWithNavigation(w http.ResponseWriter, statusCode int, apiErr *model.APIError, nav *model.Navigation) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Status:     apiErr.Status,
		Code:       apiErr.Code,
		Message:    apiErr.Message,
		Category:   apiErr.Category,
		Action:     apiErr.Action,
		Fields:     apiErr.Fields,
		Navigation: nav,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
