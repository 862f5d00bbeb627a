package models

import (
	"time"

	"github.com/google/uuid"
)

// UserType distinguishes the kinds of authenticated principals
type UserType string

const (
	UserTypeOwner    UserType = "tenant_owner"
	UserTypeEmployee UserType = "employee"
	UserTypeAdmin    UserType = "admin"
)

// Built-in role names
const (
	RoleOwner      = "Owner"
	RoleReceptie   = "Receptie"
	RoleTechnician = "Technician"
	RoleManager    = "Manager"
)

// SystemRoles are available to every tenant and cannot be changed
var SystemRoles = []Role{
	{
		Name:        RoleReceptie,
		Description: "Preluare și predare dispozitive",
		Permissions: []string{"tickets.view", "tickets.create", "tickets.update", "clients.view"},
		IsSystem:    true,
	},
	{
		Name:        RoleTechnician,
		Description: "Diagnostic și reparații",
		Permissions: []string{"tickets.view", "tickets.update", "clients.view"},
		IsSystem:    true,
	},
	{
		Name:        RoleManager,
		Description: "Administrare locație",
		Permissions: []string{"tickets.view", "tickets.create", "tickets.update", "tickets.delete", "clients.view", "statuses.manage", "employees.view"},
		IsSystem:    true,
	},
}

// IsSystemRole reports whether name is a built-in role
func IsSystemRole(name string) bool {
	if name == RoleOwner {
		return true
	}
	for _, r := range SystemRoles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// User is a tenant owner or employee
type User struct {
	ID        uuid.UUID `json:"user_id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`

	Name         string     `json:"name" db:"name"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Role         string     `json:"role" db:"role"`
	LocationID   *uuid.UUID `json:"location_id,omitempty" db:"location_id"`
	IsOwner      bool       `json:"is_owner" db:"is_owner"`
	IsActive     bool       `json:"is_active" db:"is_active"`
}

// Admin is a platform operator
type Admin struct {
	ID           uuid.UUID `json:"admin_id" db:"id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
}

// Role is a named permission set. System roles carry a nil ID.
type Role struct {
	ID          uuid.UUID `json:"role_id" db:"id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	TenantID    uuid.UUID `json:"-" db:"tenant_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Permissions []string  `json:"permissions" db:"permissions"`
	IsSystem    bool      `json:"is_system" db:"-"`
	UsersCount  int       `json:"users_count" db:"-"`
}
