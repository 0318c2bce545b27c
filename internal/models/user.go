package models

import "time"

// User of the API; mutating routes require a session.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Email     string `gorm:"not null;unique"`
	Password  string `gorm:"not null"` // bcrypt hash
	Nom       string
	Prenom    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }
