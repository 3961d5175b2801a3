package models

import (
	"time"

	"github.com/gofrs/uuid"
)

type User struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Email       string    `json:"email" gorm:"unique;not null"`
	Password    string    `json:"-" gorm:"not null"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url"`

	// GoogleID is the subject claim from a Google sign-in; empty for
	// accounts created with email and password only.
	GoogleID string `json:"-" gorm:"index"`

	IsActive    bool       `json:"is_active" gorm:"default:true"`
	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tasks []Task `json:"tasks,omitempty" gorm:"foreignKey:UserID"`
}
