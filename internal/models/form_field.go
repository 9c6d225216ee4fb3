package models

// FormField documents an expected input. Submissions are not validated against it.
type FormField struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	FormID   uint   `gorm:"not null;index" json:"-"`
	Name     string `gorm:"size:255;not null" json:"name"`
	Label    string `gorm:"size:255" json:"label"`
	Type     string `gorm:"size:50;not null;default:'text'" json:"type"`
	Required bool   `gorm:"not null;default:false" json:"required"`
	Position int    `gorm:"not null;default:0;index" json:"position"`
}
