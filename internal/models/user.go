package models

import (
	"time"
)

type User struct {
	ID           int       `json:"idUsuario" db:"id"`
	Name         string    `json:"nombre" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash *string   `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"fechaCreacion" db:"created_at"`
	UpdatedAt    time.Time `json:"fechaActualizacion" db:"updated_at"`
}

type CreateUserRequest struct {
	Name     string `json:"nombre" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"usuario"`
}
