package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of account roles.  Values are persisted verbatim
// in the users.role ENUM column and carried in the JWT "role" claim.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
	RoleStoreOwner Role = "store_owner"
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleAdmin, RoleUser, RoleStoreOwner}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleStoreOwner:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole normalises raw input (case, surrounding whitespace) and
// returns the matching Role.  Unknown values produce an error.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return r, nil
}

// User represents a row in the `users` table.  PasswordHash is never
// serialised; handlers expose users through UserView.
//
// Fields:
//  ID           – primary key identifier.
//  Name         – display name.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hash of the password.
//  Address      – postal address (max 400 chars).
//  Role         – admin, user or store_owner.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type User struct {
	ID           uint64    // users.id
	Name         string    // users.name
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Address      string    // users.address
	Role         Role      // users.role
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// UserView is the JSON representation of a user returned by the API.
type UserView struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View strips credentials from u.
func (u User) View() UserView {
	return UserView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Address:   u.Address,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
