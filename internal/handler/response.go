package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/churchadmin/internal/middleware"
	"github.com/hitoshi/churchadmin/internal/model"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError, nav *model.Navigation) {
	middleware.WriteErrorResponseWithNavigation(w, statusCode, apiErr, nav)
}

// decodeJSON はリクエストボディをデコードする。失敗した場合は入力エラーを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return model.NewInvalidBodyError()
	}
	return nil
}

// handleServiceError はエラーを適切なHTTPステータスコードに変換して書き込む。
// 強制ログアウトが発生していた場合は遷移指示を含める。
func (d *Deps) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var nav *model.Navigation
	if sc := scopeFrom(r.Context()); sc != nil {
		nav = sc.nav.Navigation()
	}

	if apiErr, ok := model.AsAPIError(err); ok {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr, nav)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	d.Logger.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError(), nav)
}

// mapAPIErrorToHTTPStatus はエラー分類からブラウザに返すHTTPステータスコードにマッピングする。
// バックエンド側の障害は502、接続できない場合は503として区別する。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInternal:
		return http.StatusInternalServerError
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	}

	switch apiErr.Kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindAuth:
		if apiErr.Status == http.StatusForbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindConnectivity:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
