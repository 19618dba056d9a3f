package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/rentcam/internal/model"
)

// PostgresEquipmentRepo はPostgreSQLを使用した機材リポジトリ。
type PostgresEquipmentRepo struct {
	pgBase
}

// NewPostgresEquipmentRepo はPostgresEquipmentRepoを生成する。
func NewPostgresEquipmentRepo(db *sql.DB) *PostgresEquipmentRepo {
	return &PostgresEquipmentRepo{pgBase: newPGBase(db)}
}

const equipmentColumns = `id, name, description, category, serial_number, is_available, image_url, specifications, created_at, updated_at`

func scanEquipment(row interface{ Scan(...any) error }) (*model.Equipment, error) {
	e := &model.Equipment{}
	var serial sql.NullString
	var specs []byte
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.Category, &serial,
		&e.IsAvailable, &e.ImageURL, &specs, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.SerialNumber = stringPtr(serial)
	e.Specifications = specs
	return e, nil
}

// specificationsParam はJSONBカラムへ渡す値を返す。未設定の場合は空オブジェクト。
func specificationsParam(e *model.Equipment) string {
	if len(e.Specifications) == 0 {
		return "{}"
	}
	return string(e.Specifications)
}

// List は条件に合う機材を名前順で返す。総件数はページングを考慮しない件数。
func (r *PostgresEquipmentRepo) List(ctx context.Context, filter model.EquipmentFilter) ([]*model.Equipment, int, error) {
	var conds []string
	var args []interface{}
	argIndex := 1

	if filter.Category != "" {
		conds = append(conds, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}
	if filter.Available != nil {
		conds = append(conds, fmt.Sprintf("is_available = $%d", argIndex))
		args = append(args, *filter.Available)
		argIndex++
	}
	if filter.Search != "" {
		conds = append(conds, fmt.Sprintf(
			"(name ILIKE $%[1]d OR description ILIKE $%[1]d OR serial_number ILIKE $%[1]d)", argIndex))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argIndex++
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var items []*model.Equipment
	var total int
	err := r.do(ctx, func(ctx context.Context) error {
		if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM equipment`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("failed to count equipment: %w", err)
		}

		query := `SELECT ` + equipmentColumns + ` FROM equipment` + where +
			fmt.Sprintf(" ORDER BY name ASC, id ASC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
		rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
		if err != nil {
			return fmt.Errorf("failed to list equipment: %w", err)
		}
		defer rows.Close()

		items = make([]*model.Equipment, 0)
		for rows.Next() {
			e, err := scanEquipment(rows)
			if err != nil {
				return fmt.Errorf("failed to scan equipment: %w", err)
			}
			items = append(items, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// FindByID は指定IDの機材を取得する。見つからない場合はnilを返す。
func (r *PostgresEquipmentRepo) FindByID(ctx context.Context, id string) (*model.Equipment, error) {
	var equipment *model.Equipment
	err := r.do(ctx, func(ctx context.Context) error {
		e, err := scanEquipment(r.db.QueryRowContext(ctx,
			`SELECT `+equipmentColumns+` FROM equipment WHERE id = $1`, id))
		if err == sql.ErrNoRows {
			equipment = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find equipment: %w", err)
		}
		equipment = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return equipment, nil
}

// Create は機材を作成する。
func (r *PostgresEquipmentRepo) Create(ctx context.Context, e *model.Equipment) error {
	return r.do(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO equipment (id, name, description, category, serial_number, is_available, image_url, specifications, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.Name, e.Description, e.Category, derefString(e.SerialNumber),
			e.IsAvailable, e.ImageURL, specificationsParam(e), e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to insert equipment: %w", err)
		}
		return nil
	})
}

// Update は機材を更新する。
func (r *PostgresEquipmentRepo) Update(ctx context.Context, e *model.Equipment) error {
	return r.do(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx,
			`UPDATE equipment
			 SET name = $2, description = $3, category = $4, serial_number = $5,
			     is_available = $6, image_url = $7, specifications = $8, updated_at = $9
			 WHERE id = $1`,
			e.ID, e.Name, e.Description, e.Category, derefString(e.SerialNumber),
			e.IsAvailable, e.ImageURL, specificationsParam(e), e.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to update equipment: %w", err)
		}
		return nil
	})
}

// Delete は機材を削除する。
func (r *PostgresEquipmentRepo) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, `DELETE FROM equipment WHERE id = $1`, id)
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrReferenced
			}
			return fmt.Errorf("failed to delete equipment: %w", err)
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

// compile-time interface check
var _ EquipmentRepository = (*PostgresEquipmentRepo)(nil)
