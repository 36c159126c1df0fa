package models

import (
	"time"

	"garagelink/internal/domain"
)

// User is the identity shared by customers and mechanics. Only the fields the
// finalization pipeline reads are mapped.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Email     string    `gorm:"size:255;index" json:"email"`
	FullName  string    `gorm:"size:255" json:"full_name"`
	Role      string    `gorm:"size:20;not null;index" json:"role"`
	FCMToken  string    `gorm:"size:512" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsMechanic() bool { return u.Role == domain.RoleMechanic }
func (u *User) IsCustomer() bool { return u.Role == domain.RoleCustomer }
