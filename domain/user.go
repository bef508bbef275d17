package domain

import (
	"time"
)

const (
	RoleUnassigned = "UNASSIGNED"
	RolePatient    = "PATIENT"
	RoleDoctor     = "DOCTOR"
	RoleAdmin      = "ADMIN"
)

type User struct {
	ID         uint    `json:"id" gorm:"primaryKey"`
	ExternalID string  `json:"external_id" gorm:"column:external_id;uniqueIndex;not null"`
	FullName   string  `json:"full_name" gorm:"column:full_name"`
	Email      string  `json:"email" gorm:"column:email"`
	ImageURL   string  `json:"image_url" gorm:"column:image_url"`
	Role       string  `json:"role" gorm:"column:role;default:UNASSIGNED"`
	Credits    int     `json:"credits" gorm:"column:credits;default:0"`
	Specialty  *string `json:"specialty,omitempty" gorm:"column:specialty"`
	Verified   bool    `json:"verified" gorm:"column:verified;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (User) TableName() string {
	return "users"
}
