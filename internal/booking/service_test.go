package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/security"
)

const (
	cameraID   = "11111111-1111-4111-8111-111111111111"
	lensID     = "22222222-2222-4222-8222-222222222222"
	retiredID  = "33333333-3333-4333-8333-333333333333"
	bookingID  = "44444444-4444-4444-8444-444444444444"
	ownerID    = "owner-user"
	strangerID = "stranger-user"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

var (
	owner    = model.Actor{UserID: ownerID, Role: model.RoleUser}
	stranger = model.Actor{UserID: strangerID, Role: model.RoleUser}
	manager  = model.Actor{UserID: "manager-user", Role: model.RoleManager}
	admin    = model.Actor{UserID: "admin-user", Role: model.RoleAdmin}
)

func newTestService(bookings *mockBookingRepo) *Service {
	equipment := &mockEquipmentRepo{items: map[string]*model.Equipment{
		cameraID:  {ID: cameraID, Name: "FX3", Category: model.CategoryCamera, IsAvailable: true},
		lensID:    {ID: lensID, Name: "24-70", Category: model.CategoryLens, IsAvailable: true},
		retiredID: {ID: retiredID, Name: "Old", Category: model.CategoryCamera, IsAvailable: false},
	}}
	svc := NewService(bookings, equipment, security.NewTextSanitizer(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return testNow }
	return svc
}

func bookingWithStatus(status model.BookingStatus) *model.Booking {
	return &model.Booking{
		ID:          bookingID,
		UserID:      ownerID,
		EquipmentID: cameraID,
		StartDate:   testNow.Add(48 * time.Hour),
		EndDate:     testNow.Add(72 * time.Hour),
		Status:      status,
	}
}

func errCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if err != nil {
		return "internal"
	}
	return ""
}

func statusPtr(s model.BookingStatus) *model.BookingStatus { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }

func TestCreate(t *testing.T) {
	repo := newMockBookingRepo()
	svc := newTestService(repo)

	start := testNow.Add(24 * time.Hour)
	b, err := svc.Create(context.Background(), owner, CreateInput{
		EquipmentID: cameraID,
		StartDate:   start,
		EndDate:     start.Add(6 * time.Hour),
		Notes:       "<b>三脚</b>も",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != model.BookingPending || b.UserID != ownerID {
		t.Errorf("booking = %+v", b)
	}
	if b.Notes != "三脚も" {
		t.Errorf("notes = %q", b.Notes)
	}
	if len(repo.availabilityCalls) != 1 || repo.availabilityCalls[0].excludeID != "" {
		t.Errorf("availability calls = %+v", repo.availabilityCalls)
	}
}

func TestCreate_Rejections(t *testing.T) {
	start := testNow.Add(24 * time.Hour)
	tests := []struct {
		name      string
		input     CreateInput
		available bool
		want      string
	}{
		{
			name:      "start in the past",
			input:     CreateInput{EquipmentID: cameraID, StartDate: testNow.Add(-time.Minute), EndDate: start},
			available: true,
			want:      model.ErrCodeInvalidBookingPeriod,
		},
		{
			name:      "end before start",
			input:     CreateInput{EquipmentID: cameraID, StartDate: start, EndDate: start.Add(-time.Hour)},
			available: true,
			want:      model.ErrCodeInvalidBookingPeriod,
		},
		{
			name:      "end equals start",
			input:     CreateInput{EquipmentID: cameraID, StartDate: start, EndDate: start},
			available: true,
			want:      model.ErrCodeInvalidBookingPeriod,
		},
		{
			name:      "unknown equipment",
			input:     CreateInput{EquipmentID: "55555555-5555-4555-8555-555555555555", StartDate: start, EndDate: start.Add(time.Hour)},
			available: true,
			want:      model.ErrCodeEquipmentNotFound,
		},
		{
			name:      "equipment marked unavailable",
			input:     CreateInput{EquipmentID: retiredID, StartDate: start, EndDate: start.Add(time.Hour)},
			available: true,
			want:      model.ErrCodeEquipmentUnavailable,
		},
		{
			name:      "overlapping booking",
			input:     CreateInput{EquipmentID: cameraID, StartDate: start, EndDate: start.Add(time.Hour)},
			available: false,
			want:      model.ErrCodeEquipmentUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockBookingRepo()
			repo.available = tt.available
			svc := newTestService(repo)

			_, err := svc.Create(context.Background(), owner, tt.input)
			if got := errCode(err); got != tt.want {
				t.Errorf("code = %q, want %q", got, tt.want)
			}
			if len(repo.bookings) != 0 {
				t.Error("booking must not be created")
			}
		})
	}
}

func TestList_RegularUserSeesOwnBookingsOnly(t *testing.T) {
	tests := []struct {
		name       string
		actor      model.Actor
		filterUser string
		wantUser   string
	}{
		{name: "user without filter", actor: owner, wantUser: ownerID},
		{name: "user asking for another user", actor: owner, filterUser: strangerID, wantUser: ownerID},
		{name: "manager without filter", actor: manager, wantUser: ""},
		{name: "admin filtering by user", actor: admin, filterUser: strangerID, wantUser: strangerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockBookingRepo()
			var got model.BookingFilter
			repo.listFn = func(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, int, error) {
				got = filter
				return nil, 0, nil
			}
			svc := newTestService(repo)

			result, err := svc.List(context.Background(), tt.actor, model.BookingFilter{UserID: tt.filterUser})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.UserID != tt.wantUser {
				t.Errorf("filter user = %q, want %q", got.UserID, tt.wantUser)
			}
			if result.Items == nil || result.Limit != model.DefaultPageLimit {
				t.Errorf("result = %+v", result)
			}
		})
	}
}

func TestList_InvalidStatus(t *testing.T) {
	svc := newTestService(newMockBookingRepo())
	_, err := svc.List(context.Background(), admin, model.BookingFilter{Status: "LOST"})
	if got := errCode(err); got != model.ErrCodeValidation {
		t.Errorf("code = %q", got)
	}
}

func TestGet_Permissions(t *testing.T) {
	tests := []struct {
		actor model.Actor
		want  string
	}{
		{actor: owner, want: ""},
		{actor: manager, want: ""},
		{actor: admin, want: ""},
		{actor: stranger, want: model.ErrCodeForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.actor.Role)+"/"+tt.actor.UserID, func(t *testing.T) {
			svc := newTestService(newMockBookingRepo(bookingWithStatus(model.BookingPending)))
			_, err := svc.Get(context.Background(), tt.actor, bookingID)
			if got := errCode(err); got != tt.want {
				t.Errorf("code = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(newMockBookingRepo())
	for _, id := range []string{bookingID, "nope"} {
		_, err := svc.Get(context.Background(), admin, id)
		if got := errCode(err); got != model.ErrCodeBookingNotFound {
			t.Errorf("Get(%q) code = %q", id, got)
		}
	}
}

func TestUpdate_PermissionMatrix(t *testing.T) {
	newStart := testNow.Add(96 * time.Hour)
	newEnd := testNow.Add(120 * time.Hour)

	tests := []struct {
		name       string
		actor      model.Actor
		status     model.BookingStatus
		input      UpdateInput
		want       string
		wantStatus model.BookingStatus
	}{
		{name: "owner changes dates while pending", actor: owner, status: model.BookingPending,
			input: UpdateInput{StartDate: &newStart, EndDate: &newEnd}, wantStatus: model.BookingPending},
		{name: "owner edits notes while pending", actor: owner, status: model.BookingPending,
			input: UpdateInput{Notes: strPtr("バッテリー2個")}, wantStatus: model.BookingPending},
		{name: "owner cancels pending", actor: owner, status: model.BookingPending,
			input: UpdateInput{Status: statusPtr(model.BookingCancelled)}, wantStatus: model.BookingCancelled},
		{name: "owner cancels approved", actor: owner, status: model.BookingApproved,
			input: UpdateInput{Status: statusPtr(model.BookingCancelled)}, wantStatus: model.BookingCancelled},
		{name: "owner changes dates after approval", actor: owner, status: model.BookingApproved,
			input: UpdateInput{StartDate: &newStart}, want: model.ErrCodeBookingNotEditable},
		{name: "owner approves own booking", actor: owner, status: model.BookingPending,
			input: UpdateInput{Status: statusPtr(model.BookingApproved)}, want: model.ErrCodeBookingNotEditable},
		{name: "owner moves booking to another equipment", actor: owner, status: model.BookingPending,
			input: UpdateInput{EquipmentID: strPtr(lensID)}, want: model.ErrCodeBookingNotEditable},
		{name: "owner reassigns booking", actor: owner, status: model.BookingPending,
			input: UpdateInput{UserID: strPtr(strangerID)}, want: model.ErrCodeBookingNotEditable},
		{name: "stranger cancels", actor: stranger, status: model.BookingPending,
			input: UpdateInput{Status: statusPtr(model.BookingCancelled)}, want: model.ErrCodeForbidden},
		{name: "manager approves", actor: manager, status: model.BookingPending,
			input: UpdateInput{Status: statusPtr(model.BookingApproved)}, wantStatus: model.BookingApproved},
		{name: "admin completes approved", actor: admin, status: model.BookingApproved,
			input: UpdateInput{Status: statusPtr(model.BookingCompleted)}, wantStatus: model.BookingCompleted},
		{name: "admin moves equipment", actor: admin, status: model.BookingApproved,
			input: UpdateInput{EquipmentID: strPtr(lensID)}, wantStatus: model.BookingApproved},
		{name: "invalid status", actor: admin, status: model.BookingPending,
			input: UpdateInput{Status: statusPtr("LOST")}, want: model.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockBookingRepo(bookingWithStatus(tt.status))
			svc := newTestService(repo)

			b, err := svc.Update(context.Background(), tt.actor, bookingID, tt.input)
			if got := errCode(err); got != tt.want {
				t.Fatalf("code = %q, want %q (err=%v)", got, tt.want, err)
			}
			if tt.want != "" {
				if repo.updated != 0 {
					t.Error("rejected update must not be saved")
				}
				return
			}
			if b.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", b.Status, tt.wantStatus)
			}
			if repo.updated != 1 {
				t.Errorf("updated = %d, want 1", repo.updated)
			}
		})
	}
}

func TestUpdate_DateChangeRechecksAvailabilityExcludingSelf(t *testing.T) {
	repo := newMockBookingRepo(bookingWithStatus(model.BookingPending))
	svc := newTestService(repo)

	newEnd := testNow.Add(100 * time.Hour)
	if _, err := svc.Update(context.Background(), owner, bookingID, UpdateInput{EndDate: &newEnd}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.availabilityCalls) != 1 {
		t.Fatalf("availability calls = %d, want 1", len(repo.availabilityCalls))
	}
	call := repo.availabilityCalls[0]
	if call.excludeID != bookingID || !call.end.Equal(newEnd) || call.equipmentID != cameraID {
		t.Errorf("availability call = %+v", call)
	}
}

func TestUpdate_DateChangeConflicts(t *testing.T) {
	repo := newMockBookingRepo(bookingWithStatus(model.BookingPending))
	repo.available = false
	svc := newTestService(repo)

	newStart := testNow.Add(50 * time.Hour)
	_, err := svc.Update(context.Background(), owner, bookingID, UpdateInput{StartDate: &newStart})
	if got := errCode(err); got != model.ErrCodeEquipmentUnavailable {
		t.Errorf("code = %q", got)
	}
}

func TestUpdate_InvalidPeriod(t *testing.T) {
	repo := newMockBookingRepo(bookingWithStatus(model.BookingPending))
	svc := newTestService(repo)

	_, err := svc.Update(context.Background(), owner, bookingID, UpdateInput{EndDate: timePtr(testNow.Add(24 * time.Hour))})
	if got := errCode(err); got != model.ErrCodeInvalidBookingPeriod {
		t.Errorf("code = %q", got)
	}
}

func TestUpdate_NotesOnlySkipsAvailability(t *testing.T) {
	repo := newMockBookingRepo(bookingWithStatus(model.BookingPending))
	svc := newTestService(repo)

	if _, err := svc.Update(context.Background(), owner, bookingID, UpdateInput{Notes: strPtr("memo")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.availabilityCalls) != 0 {
		t.Error("availability must not be checked when dates are unchanged")
	}
}

func TestDelete_PermissionMatrix(t *testing.T) {
	tests := []struct {
		name   string
		actor  model.Actor
		status model.BookingStatus
		want   string
	}{
		{name: "owner deletes pending", actor: owner, status: model.BookingPending},
		{name: "owner deletes approved", actor: owner, status: model.BookingApproved, want: model.ErrCodeBookingNotEditable},
		{name: "owner deletes cancelled", actor: owner, status: model.BookingCancelled, want: model.ErrCodeBookingNotEditable},
		{name: "stranger deletes pending", actor: stranger, status: model.BookingPending, want: model.ErrCodeForbidden},
		{name: "manager deletes approved", actor: manager, status: model.BookingApproved},
		{name: "admin deletes completed", actor: admin, status: model.BookingCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockBookingRepo(bookingWithStatus(tt.status))
			svc := newTestService(repo)

			err := svc.Delete(context.Background(), tt.actor, bookingID)
			if got := errCode(err); got != tt.want {
				t.Fatalf("code = %q, want %q", got, tt.want)
			}
			wantDeleted := tt.want == ""
			if gotDeleted := len(repo.deleted) == 1; gotDeleted != wantDeleted {
				t.Errorf("deleted = %v, want %v", gotDeleted, wantDeleted)
			}
		})
	}
}
