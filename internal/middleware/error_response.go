package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/paygate/internal/model"
)

// WriteJSON は任意の値をJSONレスポンスとして書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteJSONError は{success:false, error}形式でHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, model.NewAPIError(message))
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusInternalServerError, model.MsgInternal)
}

// routeErrorBody はルーティング失敗時のレスポンス本文。
type routeErrorBody struct {
	Error string `json:"error"`
}

// WriteRouteError はルート未定義・メソッド不一致時の{error}形式レスポンスを書き込む。
func WriteRouteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, routeErrorBody{Error: message})
}
