// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/rentcam/internal/middleware"
	"github.com/hitoshi/rentcam/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限。
const maxRequestBodySize = 1 << 20

// dataEnvelope は成功レスポンスのトップレベル。
type dataEnvelope struct {
	Data interface{} `json:"data"`
}

// writeData は{data: ...}形式でレスポンスを書き込む。
func writeData(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(dataEnvelope{Data: data})
}

// writeAPIError はAPIErrorをコードに対応するステータスで書き込む。
func writeAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidTelegramData, model.ErrCodeInvalidBookingPeriod:
		return http.StatusBadRequest
	case model.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidSignature, model.ErrCodeAuthExpired, model.ErrCodeCodeExpired:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeEquipmentNotFound, model.ErrCodeBookingNotFound, model.ErrCodeTelegramNotLinked:
		return http.StatusNotFound
	case model.ErrCodeTelegramAlreadyLinked, model.ErrCodeAlreadyVerified,
		model.ErrCodeDuplicateSerial, model.ErrCodeDuplicateEmail,
		model.ErrCodeEquipmentInUse, model.ErrCodeEquipmentUnavailable,
		model.ErrCodeBookingNotEditable:
		return http.StatusConflict
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		// CONFIGURATION_ERROR, INTERNAL_ERROR
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをdstにデコードする。失敗時はINVALID_REQUESTを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return model.NewInvalidRequestError("リクエストボディが大きすぎます")
		case errors.Is(err, io.EOF):
			return model.NewInvalidRequestError("リクエストボディが空です")
		default:
			return model.NewInvalidRequestError("JSONの解析に失敗しました")
		}
	}
	return nil
}

// queryInt はクエリパラメータを整数として読み取る。未指定の場合は0。
func queryInt(r *http.Request, name string) (int, *model.APIError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewInvalidRequestError(name + "は整数で指定してください")
	}
	return v, nil
}

// requireActor はコンテキストからログイン中のユーザーを取り出す。
// 存在しない場合は401を書き込みfalseを返す。
func requireActor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		writeAPIError(w, model.NewUnauthorizedError())
		return model.Actor{}, false
	}
	return actor, true
}
