package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// User owns forms and (in per-owner mode) one AccountSettings row.
type User struct {
	ID              uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Email           string                      `gorm:"not null;size:180;uniqueIndex" json:"email"`
	Password        string                      `gorm:"not null" json:"-"`
	Roles           datatypes.JSONSlice[string] `json:"-"`
	FullName        string                      `gorm:"size:255;not null" json:"full_name"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
	Forms           []FormDefinition            `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
	AccountSettings *AccountSettings            `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RoleList returns the stored roles plus ROLE_USER, without duplicates.
func (u *User) RoleList() []string {
	roles := make([]string, 0, len(u.Roles)+1)
	for _, r := range u.Roles {
		if r != "" && !slices.Contains(roles, r) {
			roles = append(roles, r)
		}
	}
	if !slices.Contains(roles, RoleUser) {
		roles = append(roles, RoleUser)
	}
	return roles
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.RoleList(), role)
}
