package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/user"
)

// UserServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
}

// protectedProfileFields は利用者がプロフィール更新で変更できないフィールド。
var protectedProfileFields = []string{"role", "is_verified", "telegram_id"}

// UserHandler はプロフィールのHTTPハンドラー。
type UserHandler struct {
	service   UserServiceInterface
	validator *requestValidator
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service:   service,
		validator: newRequestValidator(),
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,max=400"`
	Email    *string `json:"email" validate:"omitempty,max=254,email"`
}

// GetProfile はログイン中のユーザーを返す。
// GET /api/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	u, err := h.service.Get(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toUserResponse(u))
}

// UpdateProfile は氏名とメールアドレスを更新する。
// role、is_verified、telegram_idを含むリクエストは400を返す。
// PATCH /api/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var raw map[string]json.RawMessage
	if apiErr := decodeJSON(w, r, &raw); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if touched := touchedProtectedFields(raw); len(touched) > 0 {
		writeAPIError(w, model.NewInvalidRequestError("変更できないフィールドが含まれています: "+strings.Join(touched, ", ")))
		return
	}

	var req updateProfileRequest
	if err := remarshal(raw, &req); err != nil {
		writeAPIError(w, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}
	if apiErr := h.validator.Struct(&req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), actor.UserID, user.ProfileUpdate{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toUserResponse(u))
}

func touchedProtectedFields(raw map[string]json.RawMessage) []string {
	var touched []string
	for _, name := range protectedProfileFields {
		if _, ok := raw[name]; ok {
			touched = append(touched, name)
		}
	}
	sort.Strings(touched)
	return touched
}

// remarshal はデコード済みのJSONオブジェクトを構造体に詰め直す。
func remarshal(raw map[string]json.RawMessage, dst interface{}) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
