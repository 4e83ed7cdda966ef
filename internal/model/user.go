package model

import "time"

// Role labels stored in users.role and embedded in JWT claims.
const (
	RoleGuest = "GUEST"
	RoleHost  = "HOST"
	RoleAdmin = "ADMIN"
)

// User is an account that can own offerings (hosts) or bookings (guests).
// Authentication is JWT based; only the bcrypt hash of the password is
// stored.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email (unique)
	PasswordHash string    // users.password_hash
	Role         string    // users.role (GUEST, HOST, ADMIN)
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}
