package booking

import (
	"context"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/repository"
)

type availabilityCall struct {
	equipmentID string
	start, end  time.Time
	excludeID   string
}

// mockBookingRepo は予約をメモリ上に保持するモック。
type mockBookingRepo struct {
	bookings          map[string]*model.Booking
	available         bool
	availabilityCalls []availabilityCall
	listFn            func(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, int, error)
	updated           int
	deleted           []string
}

func newMockBookingRepo(bookings ...*model.Booking) *mockBookingRepo {
	m := &mockBookingRepo{bookings: map[string]*model.Booking{}, available: true}
	for _, b := range bookings {
		m.bookings[b.ID] = b
	}
	return m
}

func (m *mockBookingRepo) List(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, 0, nil
}

func (m *mockBookingRepo) ListActiveByEquipment(context.Context, string) ([]*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepo) CountActiveByEquipment(context.Context, string) (int, error) {
	return 0, nil
}

func (m *mockBookingRepo) FindByID(_ context.Context, id string) (*model.Booking, error) {
	if b, ok := m.bookings[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (m *mockBookingRepo) Create(_ context.Context, b *model.Booking) error {
	m.bookings[b.ID] = b
	return nil
}

func (m *mockBookingRepo) Update(_ context.Context, b *model.Booking) error {
	m.updated++
	m.bookings[b.ID] = b
	return nil
}

func (m *mockBookingRepo) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := m.bookings[id]; !ok {
		return false, nil
	}
	delete(m.bookings, id)
	m.deleted = append(m.deleted, id)
	return true, nil
}

func (m *mockBookingRepo) CheckAvailability(_ context.Context, equipmentID string, start, end time.Time, excludeID string) (bool, error) {
	m.availabilityCalls = append(m.availabilityCalls, availabilityCall{equipmentID, start, end, excludeID})
	return m.available, nil
}

type mockEquipmentRepo struct {
	items map[string]*model.Equipment
}

func (m *mockEquipmentRepo) List(context.Context, model.EquipmentFilter) ([]*model.Equipment, int, error) {
	return nil, 0, nil
}

func (m *mockEquipmentRepo) FindByID(_ context.Context, id string) (*model.Equipment, error) {
	return m.items[id], nil
}

func (m *mockEquipmentRepo) Create(context.Context, *model.Equipment) error { return nil }

func (m *mockEquipmentRepo) Update(context.Context, *model.Equipment) error { return nil }

func (m *mockEquipmentRepo) Delete(context.Context, string) (bool, error) { return false, nil }

var (
	_ repository.BookingRepository   = (*mockBookingRepo)(nil)
	_ repository.EquipmentRepository = (*mockEquipmentRepo)(nil)
)
