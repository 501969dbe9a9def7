package models

import (
	"time"

	"github.com/google/uuid"
)

// Role определяет роль пользователя
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Profile представляет пользователя маркетплейса
type Profile struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TelegramID  int64      `db:"telegram_id" json:"-"`
	Username    string     `db:"username" json:"username,omitempty"`
	FirstName   string     `db:"first_name" json:"first_name,omitempty"`
	LastName    string     `db:"last_name" json:"last_name,omitempty"`
	AvatarURL   string     `db:"avatar_url" json:"avatar_url,omitempty"`
	Bio         string     `db:"bio" json:"bio,omitempty"`
	Location    string     `db:"location" json:"location,omitempty"`
	Role        Role       `db:"role" json:"role"`
	KYCVerified bool       `db:"kyc_verified" json:"kyc_verified"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	LastLoginAt *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}

// User представляет минимальную информацию о пользователе для API
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// Brief возвращает публичную часть профиля
func (p *Profile) Brief() *User {
	return &User{
		ID:        p.ID,
		Username:  p.Username,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		AvatarURL: p.AvatarURL,
	}
}

// Actor описывает пользователя, выполняющего операцию
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// IsAdmin сообщает, является ли пользователь администратором
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
