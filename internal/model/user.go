package model

import (
	"time"
)

type User struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	PasswordHash *string   `gorm:"size:255" json:"-"` // OAuth 用户为空
	AvatarURL    string    `gorm:"size:500" json:"avatar_url"`
	Bio          string    `gorm:"type:text" json:"bio"`
	Location     string    `gorm:"size:100" json:"location"`
	Website      string    `gorm:"size:255" json:"website"`
	Company      string    `gorm:"size:100" json:"company"`
	Phone        string    `gorm:"size:30" json:"phone"`
	Provider     string    `gorm:"size:20" json:"provider,omitempty"` // local, google
	ProviderID   *string   `gorm:"size:100;uniqueIndex" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
