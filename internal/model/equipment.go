package model

import (
	"encoding/json"
	"time"
)

// EquipmentCategory は機材のカテゴリを表す。
type EquipmentCategory string

const (
	CategoryCamera    EquipmentCategory = "CAMERA"
	CategoryLens      EquipmentCategory = "LENS"
	CategoryLighting  EquipmentCategory = "LIGHTING"
	CategoryAudio     EquipmentCategory = "AUDIO"
	CategoryAccessory EquipmentCategory = "ACCESSORY"
	CategoryOther     EquipmentCategory = "OTHER"
)

// EquipmentCategories は定義済みカテゴリの一覧。
var EquipmentCategories = []EquipmentCategory{
	CategoryCamera, CategoryLens, CategoryLighting,
	CategoryAudio, CategoryAccessory, CategoryOther,
}

// Valid は定義済みのカテゴリかどうかを返す。
func (c EquipmentCategory) Valid() bool {
	for _, v := range EquipmentCategories {
		if c == v {
			return true
		}
	}
	return false
}

// Equipment はレンタル対象の機材を表す。
type Equipment struct {
	ID             string
	Name           string
	Description    string
	Category       EquipmentCategory
	SerialNumber   *string
	IsAvailable    bool
	ImageURL       string
	Specifications json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EquipmentFilter は機材一覧の検索条件。
type EquipmentFilter struct {
	Category  EquipmentCategory
	Available *bool
	Search    string
	Limit     int
	Offset    int
}
