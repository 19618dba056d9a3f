package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rentcam/internal/auth"
	"github.com/hitoshi/rentcam/internal/booking"
	"github.com/hitoshi/rentcam/internal/equipment"
	"github.com/hitoshi/rentcam/internal/middleware"
	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/telegram"
	"github.com/hitoshi/rentcam/internal/user"
	"github.com/hitoshi/rentcam/internal/verification"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn      func(ctx context.Context, flow string, a *telegram.Assertion) (*auth.LoginResult, error)
	linkFn       func(ctx context.Context, userID string, a *telegram.Assertion) (*model.User, error)
	disconnectFn func(ctx context.Context, userID string) error
}

func (m *mockAuthService) Login(ctx context.Context, flow string, a *telegram.Assertion) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, flow, a)
	}
	return nil, nil
}

func (m *mockAuthService) LinkAccount(ctx context.Context, userID string, a *telegram.Assertion) (*model.User, error) {
	if m.linkFn != nil {
		return m.linkFn(ctx, userID, a)
	}
	return nil, nil
}

func (m *mockAuthService) Disconnect(ctx context.Context, userID string) error {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, userID)
	}
	return nil
}

type mockUpdateHandler struct {
	updates []*telegram.Update
}

func (m *mockUpdateHandler) Handle(ctx context.Context, update *telegram.Update) {
	m.updates = append(m.updates, update)
}

type mockBotInfoService struct {
	lookupFn func(ctx context.Context, botName string) (*telegram.BotInfo, error)
	setupFn  func(ctx context.Context, appURL, secret string) (*telegram.WebhookSetupResult, error)
}

func (m *mockBotInfoService) Lookup(ctx context.Context, botName string) (*telegram.BotInfo, error) {
	if m.lookupFn != nil {
		return m.lookupFn(ctx, botName)
	}
	return &telegram.BotInfo{BotName: botName}, nil
}

func (m *mockBotInfoService) SetupWebhook(ctx context.Context, appURL, secret string) (*telegram.WebhookSetupResult, error) {
	if m.setupFn != nil {
		return m.setupFn(ctx, appURL, secret)
	}
	return &telegram.WebhookSetupResult{}, nil
}

type mockVerificationService struct {
	issueFn   func(ctx context.Context, userID string) (*model.VerificationCode, error)
	statusFn  func(ctx context.Context, userID string) (*verification.Status, error)
	confirmFn func(ctx context.Context, userID, code string) (*model.User, error)
}

func (m *mockVerificationService) IssueForUser(ctx context.Context, userID string) (*model.VerificationCode, error) {
	if m.issueFn != nil {
		return m.issueFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockVerificationService) Status(ctx context.Context, userID string) (*verification.Status, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, userID)
	}
	return &verification.Status{}, nil
}

func (m *mockVerificationService) ConfirmFromWeb(ctx context.Context, userID, code string) (*model.User, error) {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, userID, code)
	}
	return nil, nil
}

type mockEquipmentService struct {
	listFn   func(ctx context.Context, filter model.EquipmentFilter) (*equipment.ListResult, error)
	getFn    func(ctx context.Context, id string) (*equipment.Detail, error)
	createFn func(ctx context.Context, in equipment.CreateInput) (*model.Equipment, error)
	updateFn func(ctx context.Context, id string, in equipment.UpdateInput) (*model.Equipment, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockEquipmentService) List(ctx context.Context, filter model.EquipmentFilter) (*equipment.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return &equipment.ListResult{Items: []*model.Equipment{}, Limit: model.DefaultPageLimit}, nil
}

func (m *mockEquipmentService) Get(ctx context.Context, id string) (*equipment.Detail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewEquipmentNotFoundError(id)
}

func (m *mockEquipmentService) Create(ctx context.Context, in equipment.CreateInput) (*model.Equipment, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.Equipment{Name: in.Name, Category: in.Category}, nil
}

func (m *mockEquipmentService) Update(ctx context.Context, id string, in equipment.UpdateInput) (*model.Equipment, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, in)
	}
	return &model.Equipment{ID: id}, nil
}

func (m *mockEquipmentService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockBookingService struct {
	listFn   func(ctx context.Context, actor model.Actor, filter model.BookingFilter) (*booking.ListResult, error)
	getFn    func(ctx context.Context, actor model.Actor, id string) (*model.Booking, error)
	createFn func(ctx context.Context, actor model.Actor, in booking.CreateInput) (*model.Booking, error)
	updateFn func(ctx context.Context, actor model.Actor, id string, in booking.UpdateInput) (*model.Booking, error)
	deleteFn func(ctx context.Context, actor model.Actor, id string) error
}

func (m *mockBookingService) List(ctx context.Context, actor model.Actor, filter model.BookingFilter) (*booking.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, actor, filter)
	}
	return &booking.ListResult{Items: []*model.Booking{}, Limit: model.DefaultPageLimit}, nil
}

func (m *mockBookingService) Get(ctx context.Context, actor model.Actor, id string) (*model.Booking, error) {
	if m.getFn != nil {
		return m.getFn(ctx, actor, id)
	}
	return &model.Booking{ID: id, UserID: actor.UserID, Status: model.BookingPending}, nil
}

func (m *mockBookingService) Create(ctx context.Context, actor model.Actor, in booking.CreateInput) (*model.Booking, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, in)
	}
	return &model.Booking{UserID: actor.UserID, EquipmentID: in.EquipmentID, Status: model.BookingPending}, nil
}

func (m *mockBookingService) Update(ctx context.Context, actor model.Actor, id string, in booking.UpdateInput) (*model.Booking, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, id, in)
	}
	return &model.Booking{ID: id, UserID: actor.UserID, Status: model.BookingPending}, nil
}

func (m *mockBookingService) Delete(ctx context.Context, actor model.Actor, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil
}

type mockUserService struct {
	getFn    func(ctx context.Context, userID string) (*model.User, error)
	updateFn func(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
}

func (m *mockUserService) Get(ctx context.Context, userID string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return &model.User{ID: userID, Role: model.RoleUser}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, in)
	}
	return &model.User{ID: userID, Role: model.RoleUser}, nil
}

var (
	_ AuthServiceInterface         = (*mockAuthService)(nil)
	_ UpdateHandler                = (*mockUpdateHandler)(nil)
	_ BotInfoServiceInterface      = (*mockBotInfoService)(nil)
	_ VerificationServiceInterface = (*mockVerificationService)(nil)
	_ EquipmentServiceInterface    = (*mockEquipmentService)(nil)
	_ BookingServiceInterface      = (*mockBookingService)(nil)
	_ UserServiceInterface         = (*mockUserService)(nil)

	_ AuthServiceInterface         = (*auth.Service)(nil)
	_ UpdateHandler                = (*telegram.CommandRouter)(nil)
	_ BotInfoServiceInterface      = (*telegram.BotInfoService)(nil)
	_ VerificationServiceInterface = (*verification.Service)(nil)
	_ EquipmentServiceInterface    = (*equipment.Service)(nil)
	_ BookingServiceInterface      = (*booking.Service)(nil)
	_ UserServiceInterface         = (*user.Service)(nil)
)

// --- テストヘルパー ---

const (
	testUserID  = "7d9c4f0e-5b1a-4c2e-9f3d-1a2b3c4d5e6f"
	testStaffID = "0f1e2d3c-4b5a-4968-8776-655443322110"
)

// withActor はリクエストコンテキストにログイン中のユーザーを注入する。
func withActor(req *http.Request, userID string, role model.Role) *http.Request {
	ctx := middleware.ContextWithPrincipal(req.Context(), auth.Principal{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

// withURLParam はchiのURLパラメータを注入する。
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeData は{data: ...}のdataをdstにデコードする。
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		t.Fatalf("failed to decode data: %v (body=%s)", err, envelope.Data)
	}
}

// decodeError はエラーレスポンスの本体を返す。
func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var envelope middleware.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return envelope.Error
}

func int64Ptr(v int64) *int64 { return &v }
