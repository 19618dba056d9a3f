package equipment

import (
	"context"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/repository"
)

type mockEquipmentRepo struct {
	listFn     func(ctx context.Context, filter model.EquipmentFilter) ([]*model.Equipment, int, error)
	findByIDFn func(ctx context.Context, id string) (*model.Equipment, error)
	createFn   func(ctx context.Context, e *model.Equipment) error
	updateFn   func(ctx context.Context, e *model.Equipment) error
	deleteFn   func(ctx context.Context, id string) (bool, error)
}

func (m *mockEquipmentRepo) List(ctx context.Context, filter model.EquipmentFilter) ([]*model.Equipment, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, 0, nil
}

func (m *mockEquipmentRepo) FindByID(ctx context.Context, id string) (*model.Equipment, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockEquipmentRepo) Create(ctx context.Context, e *model.Equipment) error {
	if m.createFn != nil {
		return m.createFn(ctx, e)
	}
	return nil
}

func (m *mockEquipmentRepo) Update(ctx context.Context, e *model.Equipment) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, e)
	}
	return nil
}

func (m *mockEquipmentRepo) Delete(ctx context.Context, id string) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return true, nil
}

type mockBookingRepo struct {
	listActiveByEquipmentFn  func(ctx context.Context, equipmentID string) ([]*model.Booking, error)
	countActiveByEquipmentFn func(ctx context.Context, equipmentID string) (int, error)
}

func (m *mockBookingRepo) List(context.Context, model.BookingFilter) ([]*model.Booking, int, error) {
	return nil, 0, nil
}

func (m *mockBookingRepo) ListActiveByEquipment(ctx context.Context, equipmentID string) ([]*model.Booking, error) {
	if m.listActiveByEquipmentFn != nil {
		return m.listActiveByEquipmentFn(ctx, equipmentID)
	}
	return nil, nil
}

func (m *mockBookingRepo) CountActiveByEquipment(ctx context.Context, equipmentID string) (int, error) {
	if m.countActiveByEquipmentFn != nil {
		return m.countActiveByEquipmentFn(ctx, equipmentID)
	}
	return 0, nil
}

func (m *mockBookingRepo) FindByID(context.Context, string) (*model.Booking, error) { return nil, nil }

func (m *mockBookingRepo) Create(context.Context, *model.Booking) error { return nil }

func (m *mockBookingRepo) Update(context.Context, *model.Booking) error { return nil }

func (m *mockBookingRepo) Delete(context.Context, string) (bool, error) { return false, nil }

func (m *mockBookingRepo) CheckAvailability(context.Context, string, time.Time, time.Time, string) (bool, error) {
	return true, nil
}

var (
	_ repository.EquipmentRepository = (*mockEquipmentRepo)(nil)
	_ repository.BookingRepository   = (*mockBookingRepo)(nil)
)
