package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/middleware"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// 内部エラーは原因をログに記録する。devModeの場合のみ原因をメッセージに付加する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, devMode bool) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError("Internal server error", err)
	}

	statusCode := mapAPIErrorToHTTPStatus(apiErr)
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "internal server error",
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", chimw.GetReqID(r.Context())),
		)

		if devMode && apiErr.Cause != nil {
			detailed := *apiErr
			detailed.Message = apiErr.Message + ": " + apiErr.Cause.Error()
			apiErr = &detailed
		}
	}

	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeEmailRequired, model.ErrCodeInvalidEmail, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeAlreadySubscribed:
		// フロントエンドは重複登録を入力エラーと同じく400で扱う
		return http.StatusBadRequest
	case model.ErrCodeInvalidPagination:
		return http.StatusBadRequest
	case model.ErrCodePostNotFound, model.ErrCodeToolNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
