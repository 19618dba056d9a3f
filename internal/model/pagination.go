package model

const (
	// DefaultPageLimit は一覧取得の既定件数。
	DefaultPageLimit = 10
	// MaxPageLimit は一覧取得の最大件数。
	MaxPageLimit = 100
)

// ClampPage はlimitとoffsetを有効な範囲に丸める。
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Actor は操作を行うログイン中のユーザー。
type Actor struct {
	UserID string
	Role   Role
}

// IsStaff は管理者またはマネージャーかどうかを返す。
func (a Actor) IsStaff() bool {
	return a.Role.IsStaff()
}
