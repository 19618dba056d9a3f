package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
)

// PostgresBookingRepo はPostgreSQLを使用した予約リポジトリ。
type PostgresBookingRepo struct {
	pgBase
}

// NewPostgresBookingRepo はPostgresBookingRepoを生成する。
func NewPostgresBookingRepo(db *sql.DB) *PostgresBookingRepo {
	return &PostgresBookingRepo{pgBase: newPGBase(db)}
}

const bookingColumns = `id, user_id, equipment_id, start_date, end_date, status, notes, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	b := &model.Booking{}
	err := row.Scan(
		&b.ID, &b.UserID, &b.EquipmentID, &b.StartDate, &b.EndDate,
		&b.Status, &b.Notes, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *PostgresBookingRepo) queryBookings(ctx context.Context, query string, args ...any) ([]*model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// List は条件に合う予約を開始日時の降順で返す。
// Fromは終了日時がFrom以降、Toは開始日時がTo以前の予約に絞り込む。
func (r *PostgresBookingRepo) List(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, int, error) {
	var conds []string
	var args []interface{}
	argIndex := 1

	add := func(cond string, arg interface{}) {
		conds = append(conds, fmt.Sprintf(cond, argIndex))
		args = append(args, arg)
		argIndex++
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.EquipmentID != "" {
		add("equipment_id = $%d", filter.EquipmentID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.From != nil {
		add("end_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("start_date <= $%d", *filter.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var bookings []*model.Booking
	var total int
	err := r.do(ctx, func(ctx context.Context) error {
		if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM bookings`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("failed to count bookings: %w", err)
		}

		query := `SELECT ` + bookingColumns + ` FROM bookings` + where +
			fmt.Sprintf(" ORDER BY start_date DESC, id ASC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
		b, err := r.queryBookings(ctx, query, append(args, filter.Limit, filter.Offset)...)
		if err != nil {
			return err
		}
		bookings = b
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// ListActiveByEquipment は機材の承認待ち・承認済みの予約を返す。
func (r *PostgresBookingRepo) ListActiveByEquipment(ctx context.Context, equipmentID string) ([]*model.Booking, error) {
	var bookings []*model.Booking
	err := r.do(ctx, func(ctx context.Context) error {
		b, err := r.queryBookings(ctx,
			`SELECT `+bookingColumns+` FROM bookings
			 WHERE equipment_id = $1 AND status IN ('PENDING', 'APPROVED')
			 ORDER BY start_date ASC`,
			equipmentID,
		)
		if err != nil {
			return err
		}
		bookings = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// CountActiveByEquipment は機材の承認待ち・承認済みの予約数を返す。
func (r *PostgresBookingRepo) CountActiveByEquipment(ctx context.Context, equipmentID string) (int, error) {
	var count int
	err := r.do(ctx, func(ctx context.Context) error {
		err := r.db.QueryRowContext(ctx,
			`SELECT count(*) FROM bookings WHERE equipment_id = $1 AND status IN ('PENDING', 'APPROVED')`,
			equipmentID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count active bookings: %w", err)
		}
		return nil
	})
	return count, err
}

// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
func (r *PostgresBookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	var booking *model.Booking
	err := r.do(ctx, func(ctx context.Context) error {
		b, err := scanBooking(r.db.QueryRowContext(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
		if err == sql.ErrNoRows {
			booking = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find booking: %w", err)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Create は予約を作成する。
func (r *PostgresBookingRepo) Create(ctx context.Context, b *model.Booking) error {
	return r.do(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO bookings (id, user_id, equipment_id, start_date, end_date, status, notes, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			b.ID, b.UserID, b.EquipmentID, b.StartDate, b.EndDate, b.Status, b.Notes, b.CreatedAt, b.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	})
}

// Update は予約の期間・状態・備考を更新する。
func (r *PostgresBookingRepo) Update(ctx context.Context, b *model.Booking) error {
	return r.do(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx,
			`UPDATE bookings
			 SET start_date = $2, end_date = $3, status = $4, notes = $5, updated_at = $6
			 WHERE id = $1`,
			b.ID, b.StartDate, b.EndDate, b.Status, b.Notes, b.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		return nil
	})
}

// Delete は予約を削除する。
func (r *PostgresBookingRepo) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete booking: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		deleted = rowsAffected > 0
		return nil
	})
	return deleted, err
}

// CheckAvailability はcheck_equipment_availabilityで期間の空きを確認する。
func (r *PostgresBookingRepo) CheckAvailability(ctx context.Context, equipmentID string, start, end time.Time, excludeBookingID string) (bool, error) {
	var available bool
	err := r.do(ctx, func(ctx context.Context) error {
		err := r.db.QueryRowContext(ctx,
			`SELECT check_equipment_availability($1, $2, $3, $4)`,
			equipmentID, start, end, nullString(excludeBookingID),
		).Scan(&available)
		if err != nil {
			return fmt.Errorf("failed to check equipment availability: %w", err)
		}
		return nil
	})
	return available, err
}

// compile-time interface check
var _ BookingRepository = (*PostgresBookingRepo)(nil)
