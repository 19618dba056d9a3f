package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rentcam/internal/booking"
	"github.com/hitoshi/rentcam/internal/model"
)

// BookingServiceInterface は予約ハンドラーが必要とするサービスインターフェース。
type BookingServiceInterface interface {
	List(ctx context.Context, actor model.Actor, filter model.BookingFilter) (*booking.ListResult, error)
	Get(ctx context.Context, actor model.Actor, id string) (*model.Booking, error)
	Create(ctx context.Context, actor model.Actor, in booking.CreateInput) (*model.Booking, error)
	Update(ctx context.Context, actor model.Actor, id string, in booking.UpdateInput) (*model.Booking, error)
	Delete(ctx context.Context, actor model.Actor, id string) error
}

// BookingHandler は予約のHTTPハンドラー。
type BookingHandler struct {
	service   BookingServiceInterface
	validator *requestValidator
}

// NewBookingHandler はBookingHandlerを生成する。
func NewBookingHandler(service BookingServiceInterface) *BookingHandler {
	return &BookingHandler{
		service:   service,
		validator: newRequestValidator(),
	}
}

// createBookingRequest は予約作成リクエストのボディ。日時はRFC 3339。
type createBookingRequest struct {
	EquipmentID string     `json:"equipment_id" validate:"required,uuid"`
	StartDate   *time.Time `json:"start_date" validate:"required"`
	EndDate     *time.Time `json:"end_date" validate:"required"`
	Notes       string     `json:"notes" validate:"max=2000"`
}

// updateBookingRequest は予約更新リクエストのボディ。
type updateBookingRequest struct {
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Notes       *string    `json:"notes" validate:"omitempty,max=2000"`
	Status      *string    `json:"status"`
	EquipmentID *string    `json:"equipment_id" validate:"omitempty,uuid"`
	UserID      *string    `json:"user_id" validate:"omitempty,uuid"`
}

// List は予約一覧を返す。一般ユーザーは自分の予約のみ。
// GET /api/bookings?status=&equipment_id=&user_id=&from=&to=&limit=&offset=
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := model.BookingFilter{
		UserID:      q.Get("user_id"),
		EquipmentID: q.Get("equipment_id"),
		Status:      model.BookingStatus(q.Get("status")),
	}

	var apiErr *model.APIError
	if filter.From, apiErr = queryTime(r, "from"); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if filter.To, apiErr = queryTime(r, "to"); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if filter.Limit, apiErr = queryInt(r, "limit"); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if filter.Offset, apiErr = queryInt(r, "offset"); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	result, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, listResponse{
		Items:  toBookingResponses(result.Items),
		Total:  result.Total,
		Limit:  result.Limit,
		Offset: result.Offset,
	})
}

// Get は予約を返す。
// GET /api/bookings/{id}
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	b, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBookingResponse(b))
}

// Create は承認待ちの予約を作成する。
// POST /api/bookings
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createBookingRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if apiErr := h.validator.Struct(&req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	b, err := h.service.Create(r.Context(), actor, booking.CreateInput{
		EquipmentID: req.EquipmentID,
		StartDate:   *req.StartDate,
		EndDate:     *req.EndDate,
		Notes:       req.Notes,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toBookingResponse(b))
}

// Update は予約を部分更新する。
// PATCH /api/bookings/{id}
func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req updateBookingRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if apiErr := h.validator.Struct(&req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	in := booking.UpdateInput{
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Notes:       req.Notes,
		EquipmentID: req.EquipmentID,
		UserID:      req.UserID,
	}
	if req.Status != nil {
		status := model.BookingStatus(*req.Status)
		in.Status = &status
	}

	b, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBookingResponse(b))
}

// Delete は予約を削除する。
// DELETE /api/bookings/{id}
func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryTime はRFC 3339のクエリパラメータを読み取る。未指定の場合はnil。
func queryTime(r *http.Request, name string) (*time.Time, *model.APIError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, model.NewInvalidRequestError(name + "はRFC 3339形式で指定してください")
	}
	return &t, nil
}
