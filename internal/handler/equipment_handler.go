package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rentcam/internal/equipment"
	"github.com/hitoshi/rentcam/internal/model"
)

// EquipmentServiceInterface は機材ハンドラーが必要とするサービスインターフェース。
type EquipmentServiceInterface interface {
	List(ctx context.Context, filter model.EquipmentFilter) (*equipment.ListResult, error)
	Get(ctx context.Context, id string) (*equipment.Detail, error)
	Create(ctx context.Context, in equipment.CreateInput) (*model.Equipment, error)
	Update(ctx context.Context, id string, in equipment.UpdateInput) (*model.Equipment, error)
	Delete(ctx context.Context, id string) error
}

// EquipmentHandler は機材カタログのHTTPハンドラー。
type EquipmentHandler struct {
	service   EquipmentServiceInterface
	validator *requestValidator
}

// NewEquipmentHandler はEquipmentHandlerを生成する。
func NewEquipmentHandler(service EquipmentServiceInterface) *EquipmentHandler {
	return &EquipmentHandler{
		service:   service,
		validator: newRequestValidator(),
	}
}

// createEquipmentRequest は機材登録リクエストのボディ。
type createEquipmentRequest struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Description    string          `json:"description" validate:"max=5000"`
	Category       string          `json:"category" validate:"required"`
	SerialNumber   string          `json:"serial_number" validate:"max=100"`
	IsAvailable    *bool           `json:"is_available"`
	ImageURL       string          `json:"image_url" validate:"omitempty,url,max=2048"`
	Specifications json.RawMessage `json:"specifications"`
}

// updateEquipmentRequest は機材更新リクエストのボディ。省略したフィールドは変更しない。
type updateEquipmentRequest struct {
	Name           *string         `json:"name" validate:"omitempty,max=200"`
	Description    *string         `json:"description" validate:"omitempty,max=5000"`
	Category       *string         `json:"category"`
	SerialNumber   *string         `json:"serial_number" validate:"omitempty,max=100"`
	IsAvailable    *bool           `json:"is_available"`
	ImageURL       *string         `json:"image_url" validate:"omitempty,max=2048"`
	Specifications json.RawMessage `json:"specifications"`
}

// List は機材一覧を返す。
// GET /api/equipment?category=&available=&search=&limit=&offset=
func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.EquipmentFilter{
		Category: model.EquipmentCategory(q.Get("category")),
		Search:   q.Get("search"),
	}

	switch q.Get("available") {
	case "":
	case "true":
		available := true
		filter.Available = &available
	case "false":
		available := false
		filter.Available = &available
	default:
		writeAPIError(w, model.NewInvalidRequestError("availableはtrueまたはfalseで指定してください"))
		return
	}

	var apiErr *model.APIError
	if filter.Limit, apiErr = queryInt(r, "limit"); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if filter.Offset, apiErr = queryInt(r, "offset"); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	items := make([]equipmentResponse, 0, len(result.Items))
	for _, e := range result.Items {
		items = append(items, toEquipmentResponse(e))
	}
	writeData(w, http.StatusOK, listResponse{
		Items:  items,
		Total:  result.Total,
		Limit:  result.Limit,
		Offset: result.Offset,
	})
}

// Get は機材と有効な予約を返す。
// GET /api/equipment/{id}
func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, equipmentDetailResponse{
		equipmentResponse: toEquipmentResponse(detail.Equipment),
		Bookings:          toBookingResponses(detail.Bookings),
	})
}

// Create は機材を登録する。
// POST /api/equipment
func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEquipmentRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if apiErr := h.validator.Struct(&req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	e, err := h.service.Create(r.Context(), equipment.CreateInput{
		Name:           req.Name,
		Description:    req.Description,
		Category:       model.EquipmentCategory(req.Category),
		SerialNumber:   req.SerialNumber,
		IsAvailable:    req.IsAvailable,
		ImageURL:       req.ImageURL,
		Specifications: req.Specifications,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toEquipmentResponse(e))
}

// Update は機材を部分更新する。
// PATCH /api/equipment/{id}
func (h *EquipmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateEquipmentRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if apiErr := h.validator.Struct(&req); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	in := equipment.UpdateInput{
		Name:           req.Name,
		Description:    req.Description,
		SerialNumber:   req.SerialNumber,
		IsAvailable:    req.IsAvailable,
		ImageURL:       req.ImageURL,
		Specifications: req.Specifications,
	}
	if req.Category != nil {
		category := model.EquipmentCategory(*req.Category)
		in.Category = &category
	}

	e, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toEquipmentResponse(e))
}

// Delete は機材を削除する。
// DELETE /api/equipment/{id}
func (h *EquipmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
